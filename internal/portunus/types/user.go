package types

type RegisterUserRequest struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Category string `json:"category"`
}

// UpdateProfileRequest carries optional edits; nil fields are left alone.
type UpdateProfileRequest struct {
	Name     *string `json:"name,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Category *string `json:"category,omitempty"`
	IsAdmin  *bool   `json:"is_admin,omitempty"`
}

type UserView struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Category  string `json:"category"`
	FaceID    string `json:"face_id,omitempty"`
	IsAdmin   bool   `json:"is_admin"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// RegisteredUserView is the registration response: the new user plus a
// bearer token for that user's own routes.
type RegisteredUserView struct {
	UserView
	Token string `json:"token"`
}

type UserList struct {
	Users []UserView `json:"users"`
}
