package model

// Identity 是经过认证后的运行时身份，随连接传递，不落库
// Role 由 Email 推导，取值为 RoleUser / RoleSupport
type Identity struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Role        string `json:"role"`
}

// IsSupport 判断身份是否属于客服
func (i *Identity) IsSupport() bool {
	return i.Role == RoleSupport
}
