package social

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"social/auth"
	"social/database"
	"social/models"
)

var handlePattern = regexp.MustCompile(`^[\p{L}\p{N}_]+$`)

type RegisterInput struct {
	Username   string `json:"username"`
	UserHandle string `json:"user_handle"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Password2  string `json:"password2"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Biography  string `json:"biography"`
}

type Profile struct {
	UserSummary
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (in *RegisterInput) validate() error {
	fields := map[string]string{}
	required := map[string]string{
		"username":    in.Username,
		"user_handle": in.UserHandle,
		"email":       in.Email,
		"password":    in.Password,
		"password2":   in.Password2,
		"first_name":  in.FirstName,
		"last_name":   in.LastName,
	}
	for name, v := range required {
		if strings.TrimSpace(v) == "" {
			fields[name] = "This field is required."
		}
	}
	if in.Email != "" && !strings.Contains(in.Email, "@") {
		fields["email"] = "Enter a valid email address."
	}
	if in.UserHandle != "" {
		switch {
		case utf8.RuneCountInString(in.UserHandle) > models.MaxHandleLength:
			fields["user_handle"] = fmt.Sprintf("Ensure this field has no more than %d characters.", models.MaxHandleLength)
		case !handlePattern.MatchString(in.UserHandle):
			fields["user_handle"] = "Only letters, numbers and underscores are allowed."
		}
	}
	if in.Password != "" && in.Password != in.Password2 {
		fields["password"] = "Password fields didn't match."
	}
	if utf8.RuneCountInString(in.Biography) > 160 {
		fields["biography"] = "Ensure this field has no more than 160 characters."
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Register creates an active account. Handles and emails are unique
// regardless of case.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Profile, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	handle := strings.ToLower(strings.TrimSpace(in.UserHandle))
	email := strings.ToLower(strings.TrimSpace(in.Email))

	var taken int64
	if err := db.Model(&models.User{}).Where("user_handle = ? OR email = ?", handle, email).Count(&taken).Error; err != nil {
		return nil, err
	}
	if taken > 0 {
		return nil, &ConflictError{Msg: "A user with that handle or email already exists."}
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u := models.User{
		Username:   strings.TrimSpace(in.Username),
		UserHandle: handle,
		Email:      email,
		PWHash:     hash,
		FirstName:  strings.TrimSpace(in.FirstName),
		LastName:   strings.TrimSpace(in.LastName),
		Biography:  in.Biography,
		IsActive:   true,
	}
	if err := db.Create(&u).Error; err != nil {
		if database.IsDuplicate(err) {
			return nil, &ConflictError{Msg: "A user with that handle or email already exists."}
		}
		return nil, err
	}
	s.log.WithField("user_handle", handle).Info("User registered successfully")
	return profile(u), nil
}

// Authenticate resolves login, an email or a handle, to an active user whose
// password matches.
func (s *Service) Authenticate(ctx context.Context, login, password string) (*models.User, error) {
	login = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(login, "@")))
	if login == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	var u models.User
	err := s.db.WithContext(ctx).
		Where("(email = ? OR user_handle = ?) AND is_active = ?", login, login, true).
		First(&u).Error
	if database.IsNotFound(err) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPasswordHash(password, u.PWHash) {
		return nil, ErrInvalidCredentials
	}
	return &u, nil
}

// ActiveUser reports whether id names an active account.
func (s *Service) ActiveUser(ctx context.Context, id uint) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ? AND is_active = ?", id, true).Count(&n).Error
	return n > 0, err
}

func (s *Service) GetUser(ctx context.Context, viewer uint, handle string) (*Profile, error) {
	if viewer == 0 {
		return nil, ErrUnauthenticated
	}
	db := s.db.WithContext(ctx)
	u, err := userByHandle(db, handle)
	if database.IsNotFound(err) {
		return nil, notFound("User not found.")
	}
	if err != nil {
		return nil, err
	}
	if err := guardOwner(db, u.ID, viewer); err != nil {
		return nil, err
	}
	return profile(*u), nil
}

// ListUsers returns active users by follower count, leaving out users the
// viewer blocked.
func (s *Service) ListUsers(ctx context.Context, viewer uint, search string, pr PageRequest) (Page[UserSummary], error) {
	if viewer == 0 {
		return Page[UserSummary]{}, ErrUnauthenticated
	}
	db := s.db.WithContext(ctx)
	q := db.Model(&models.User{}).
		Where("is_active = ?", true).
		Where("id NOT IN (?)", blockedByViewer(db, viewer))
	if term := strings.TrimSpace(search); term != "" {
		like := "%" + escapeLike(strings.ToLower(term)) + "%"
		q = q.Where("(LOWER(username) LIKE ? ESCAPE '\\' OR user_handle LIKE ? ESCAPE '\\')", like, like)
	}
	var users []models.User
	if err := q.Order("follower_amount DESC, id").Find(&users).Error; err != nil {
		return Page[UserSummary]{}, err
	}
	if len(users) == 0 {
		return Page[UserSummary]{}, notFound("Not found users.")
	}
	page, err := paginate(users, pr)
	if err != nil {
		return Page[UserSummary]{}, err
	}
	return mapPage(page, summarize), nil
}

func profile(u models.User) *Profile {
	return &Profile{UserSummary: summarize(u), FirstName: u.FirstName, LastName: u.LastName}
}

// UpdateUserInput carries a partial profile update; nil fields are left
// unchanged.
type UpdateUserInput struct {
	Username   *string `json:"username"`
	UserHandle *string `json:"user_handle"`
	Email      *string `json:"email"`
	FirstName  *string `json:"first_name"`
	LastName   *string `json:"last_name"`
	Biography  *string `json:"biography"`
}

func (in *UpdateUserInput) changes() (map[string]interface{}, error) {
	fields := map[string]string{}
	set := map[string]interface{}{}

	text := func(name string, v *string, max int, required bool) {
		if v == nil {
			return
		}
		val := strings.TrimSpace(*v)
		switch {
		case required && val == "":
			fields[name] = "This field may not be blank."
		case utf8.RuneCountInString(val) > max:
			fields[name] = fmt.Sprintf("Ensure this field has no more than %d characters.", max)
		default:
			set[name] = val
		}
	}
	text("username", in.Username, 150, true)
	text("first_name", in.FirstName, 150, true)
	text("last_name", in.LastName, 150, true)
	text("biography", in.Biography, 160, false)

	if in.UserHandle != nil {
		handle := strings.ToLower(strings.TrimSpace(*in.UserHandle))
		switch {
		case handle == "":
			fields["user_handle"] = "This field may not be blank."
		case utf8.RuneCountInString(handle) > models.MaxHandleLength:
			fields["user_handle"] = fmt.Sprintf("Ensure this field has no more than %d characters.", models.MaxHandleLength)
		case !handlePattern.MatchString(handle):
			fields["user_handle"] = "Only letters, numbers and underscores are allowed."
		default:
			set["user_handle"] = handle
		}
	}
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if !strings.Contains(email, "@") {
			fields["email"] = "Enter a valid email address."
		} else {
			set["email"] = email
		}
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	return set, nil
}

// UpdateUser applies a partial profile update to the viewer's own account.
func (s *Service) UpdateUser(ctx context.Context, viewer uint, handle string, in UpdateUserInput) (*Profile, error) {
	if viewer == 0 {
		return nil, ErrUnauthenticated
	}
	db := s.db.WithContext(ctx)
	u, err := userByHandle(db, handle)
	if database.IsNotFound(err) {
		return nil, notFound("User not found.")
	}
	if err != nil {
		return nil, err
	}
	if u.ID != viewer {
		return nil, ErrForbidden
	}

	set, err := in.changes()
	if err != nil {
		return nil, err
	}
	if len(set) == 0 {
		return profile(*u), nil
	}
	if err := uniqueIdentity(db, u.ID, set); err != nil {
		return nil, err
	}

	if err := db.Model(u).Updates(set).Error; err != nil {
		if database.IsDuplicate(err) {
			return nil, &ConflictError{Msg: "A user with that handle or email already exists."}
		}
		return nil, err
	}
	if err := db.First(u, u.ID).Error; err != nil {
		return nil, err
	}
	s.log.WithField("user", viewer).Info("User updated")
	return profile(*u), nil
}

// uniqueIdentity rejects a handle or email already used by another user.
func uniqueIdentity(db *gorm.DB, self uint, set map[string]interface{}) error {
	for _, column := range []string{"user_handle", "email"} {
		v, ok := set[column]
		if !ok {
			continue
		}
		var n int64
		if err := db.Model(&models.User{}).Where(column+" = ? AND id <> ?", v, self).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return &ConflictError{Msg: "A user with that " + column + " already exists."}
		}
	}
	return nil
}

// DeleteUser deactivates the viewer's own account. Its posts, engagement,
// votes, follows, blocks and notifications are removed and every counter
// they contributed to is restored. The row is kept so the handle stays
// reserved.
func (s *Service) DeleteUser(ctx context.Context, viewer uint, handle string) error {
	if viewer == 0 {
		return ErrUnauthenticated
	}
	db := s.db.WithContext(ctx)
	u, err := userByHandle(db, handle)
	if database.IsNotFound(err) {
		return notFound("User not found.")
	}
	if err != nil {
		return err
	}
	if u.ID != viewer {
		return ErrForbidden
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		var posts []models.Post
		if err := tx.Where("user_id = ?", u.ID).Find(&posts).Error; err != nil {
			return err
		}
		for _, p := range posts {
			if err := removePost(tx, p); err != nil {
				return err
			}
		}
		for _, k := range []engagementKind{likeKind, repostKind} {
			if err := dropEngagement(tx, k, u.ID); err != nil {
				return err
			}
		}
		if err := dropVotes(tx, u.ID); err != nil {
			return err
		}
		if err := dropFollows(tx, u.ID); err != nil {
			return err
		}
		if err := tx.Where("blocked_by_id = ? OR blocked_user_id = ?", u.ID, u.ID).Delete(&models.Block{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", u.ID).Delete(&models.Mention{}).Error; err != nil {
			return err
		}
		if err := tx.Where("sender_id = ? OR recipient_id = ?", u.ID, u.ID).Delete(&models.Notification{}).Error; err != nil {
			return err
		}
		return tx.Model(u).UpdateColumn("is_active", false).Error
	})
	if err != nil {
		return err
	}
	s.log.WithField("user", viewer).Info("User deactivated")
	return nil
}

func dropEngagement(tx *gorm.DB, k engagementKind, user uint) error {
	var postIDs []uint
	if err := tx.Table(k.table).Where("user_id = ?", user).Pluck("post_id", &postIDs).Error; err != nil {
		return err
	}
	for _, id := range postIDs {
		if err := bump(tx, id, k.counter, -1); err != nil {
			return err
		}
	}
	return tx.Where("user_id = ?", user).Delete(k.model(0, 0)).Error
}

func dropVotes(tx *gorm.DB, user uint) error {
	var votes []models.Vote
	if err := tx.Where("user_id = ?", user).Find(&votes).Error; err != nil {
		return err
	}
	for _, v := range votes {
		if err := tx.Model(&models.PollOption{}).Where("id = ? AND votes > 0", v.OptionID).
			UpdateColumn("votes", gorm.Expr("votes - ?", 1)).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Poll{}).Where("id = ? AND total_votes > 0", v.PollID).
			UpdateColumn("total_votes", gorm.Expr("total_votes - ?", 1)).Error; err != nil {
			return err
		}
	}
	return tx.Where("user_id = ?", user).Delete(&models.Vote{}).Error
}

func dropFollows(tx *gorm.DB, user uint) error {
	var follows []models.Follow
	if err := tx.Where("follower_id = ? OR following_id = ?", user, user).Find(&follows).Error; err != nil {
		return err
	}
	for _, f := range follows {
		if err := adjustFollowCounters(tx, f.FollowerID, f.FollowingID, -1); err != nil {
			return err
		}
	}
	return tx.Where("follower_id = ? OR following_id = ?", user, user).Delete(&models.Follow{}).Error
}

// Availability answers whether a handle or email is free to register.
type Availability struct {
	Available   bool     `json:"available"`
	Message     string   `json:"message,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

const maxSuggestions = 3

// CheckAvailability looks up field, either user_handle or email, regardless
// of case. A taken handle comes with up to three free alternatives.
func (s *Service) CheckAvailability(ctx context.Context, field, value string) (*Availability, error) {
	field = strings.ToLower(field)
	if field != "user_handle" && field != "email" {
		return nil, invalid("field_name", "Must be email or user_handle.")
	}
	value = strings.ToLower(strings.TrimSpace(value))
	db := s.db.WithContext(ctx)

	var n int64
	if err := db.Model(&models.User{}).Where(field+" = ?", value).Count(&n).Error; err != nil {
		return nil, err
	}
	if n == 0 {
		return &Availability{Available: true}, nil
	}
	if field == "email" {
		return &Availability{Message: "Already exists an user with this email."}, nil
	}
	suggestions, err := handleSuggestions(db, value)
	if err != nil {
		return nil, err
	}
	return &Availability{
		Message:     "Already exists an user with this user_handle.",
		Suggestions: suggestions,
	}, nil
}

// handleSuggestions appends random numbers to base, keeping candidates
// within the handle length limit and not yet registered.
func handleSuggestions(db *gorm.DB, base string) ([]string, error) {
	if r := []rune(base); len(r) > models.MaxHandleLength-4 {
		base = string(r[:models.MaxHandleLength-4])
	}
	candidates := make([]string, 0, maxSuggestions*2)
	seen := map[string]bool{}
	for len(candidates) < cap(candidates) {
		c := fmt.Sprintf("%s%d", base, 10+rand.Intn(991))
		if !seen[c] {
			seen[c] = true
			candidates = append(candidates, c)
		}
	}

	var taken []string
	if err := db.Model(&models.User{}).Where("user_handle IN ?", candidates).Pluck("user_handle", &taken).Error; err != nil {
		return nil, err
	}
	used := map[string]bool{}
	for _, h := range taken {
		used[h] = true
	}
	out := make([]string, 0, maxSuggestions)
	for _, c := range candidates {
		if !used[c] && len(out) < maxSuggestions {
			out = append(out, c)
		}
	}
	return out, nil
}

// PasswordsMatch compares a password with its confirmation. Both are
// required.
func PasswordsMatch(password, password2 string) (bool, error) {
	fields := map[string]string{}
	if password == "" {
		fields["password"] = "This field is required."
	}
	if password2 == "" {
		fields["password2"] = "This field is required."
	}
	if len(fields) > 0 {
		return false, &ValidationError{Fields: fields}
	}
	return password == password2, nil
}

type PasswordChangeInput struct {
	OldPassword        string `json:"old_password"`
	NewPassword        string `json:"new_password"`
	ConfirmNewPassword string `json:"confirm_new_password"`
}

// ChangePassword replaces the viewer's password after checking the current
// one.
func (s *Service) ChangePassword(ctx context.Context, viewer uint, in PasswordChangeInput) error {
	if viewer == 0 {
		return ErrUnauthenticated
	}
	fields := map[string]string{}
	for name, v := range map[string]string{
		"old_password":         in.OldPassword,
		"new_password":         in.NewPassword,
		"confirm_new_password": in.ConfirmNewPassword,
	} {
		if v == "" {
			fields[name] = "This field is required."
		}
	}
	if len(fields) == 0 && in.NewPassword != in.ConfirmNewPassword {
		fields["confirm_new_password"] = "Passwords do not match."
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}

	db := s.db.WithContext(ctx)
	var u models.User
	err := db.Where("id = ? AND is_active = ?", viewer, true).First(&u).Error
	if database.IsNotFound(err) {
		return ErrUnauthenticated
	}
	if err != nil {
		return err
	}
	if !auth.CheckPasswordHash(in.OldPassword, u.PWHash) {
		return ErrInvalidCredentials
	}
	hash, err := auth.HashPassword(in.NewPassword)
	if err != nil {
		return err
	}
	if err := db.Model(&u).UpdateColumn("pw_hash", hash).Error; err != nil {
		return err
	}
	s.log.WithField("user", viewer).Info("Password changed")
	return nil
}
