package auth

import "github.com/hitoshi/gatekeeper/internal/model"

// AuthorizeMutation は他者が所有し得るリソースの更新・削除を許可するか判定する。
// 認証済みかつ（adminロール、またはリソースの所有者本人）の場合のみ許可し、
// それ以外はErrForbiddenを返す。
func AuthorizeMutation(caller model.Identity, owner string) error {
	if !caller.Authenticated {
		return ErrForbidden
	}
	if caller.Role == model.RoleAdmin {
		return nil
	}
	if caller.Identity != "" && caller.Identity == owner {
		return nil
	}
	return ErrForbidden
}
