package auth

// Roles carried in the access token's "role" claim.
const (
	RoleStudent = "student"
	RoleCompany = "company"
)

// Context keys set by RequireAuth.
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)
