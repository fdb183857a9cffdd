package presenter

import (
	"context"
	"fmt"

	"github.com/nao1215/chatrelay/pkg/httpclient"
)

// Permission は通知表示の許可状態。
type Permission string

const (
	// PermissionGranted は通知の表示が許可されていることを表す。
	PermissionGranted Permission = "granted"
	// PermissionDenied は通知の表示が拒否されていることを表す。
	PermissionDenied Permission = "denied"
	// PermissionDefault は許可がまだ求められていないことを表す。
	PermissionDefault Permission = "default"
)

// Surface はOS通知面への操作を抽象化する。
//
// 表示中の通知そのものは所有可能な状態として扱わない。固定タグの通知は
// 集約ストアから常に再構築できるため、Surfaceは置換・削除・存在確認だけを提供する。
type Surface interface {
	// Permission は現在の通知許可状態を返す。
	Permission(ctx context.Context) (Permission, error)
	// RequestPermission はユーザーに通知許可を要求し、結果を返す。
	RequestPermission(ctx context.Context) (Permission, error)
	// Show は通知を表示する。同一タグの既存通知は置換される。
	Show(ctx context.Context, opts *Options) error
	// Shown は指定タグの通知が現在表示されているかを返す。
	Shown(ctx context.Context, tag string) (bool, error)
	// Close は指定タグの通知を閉じる。存在しなくてもエラーにしない。
	Close(ctx context.Context, tag string) error
	// OpenPage は指定URLで新しいフォアグラウンドページを開く。
	OpenPage(ctx context.Context, url string) error
}

// HTTPSurface は通知サーフェス（ブラウザシェル相当のホスト）へのHTTP実装。
type HTTPSurface struct {
	client *httpclient.Client
}

// NewHTTPSurface は通知サーフェスへのHTTPクライアント実装を生成する。
func NewHTTPSurface(baseURL, version string) *HTTPSurface {
	return &HTTPSurface{client: httpclient.New(baseURL).WithVersion(version)}
}

// permissionResponse は許可状態APIのレスポンス。
type permissionResponse struct {
	Permission string `json:"permission"`
}

// Permission は現在の通知許可状態を取得する。
func (s *HTTPSurface) Permission(ctx context.Context) (Permission, error) {
	var resp permissionResponse
	if err := s.client.GetJSON(ctx, "/api/v1/notifications/permission", &resp); err != nil {
		return PermissionDefault, fmt.Errorf("許可状態の取得に失敗: %w", err)
	}
	return Permission(resp.Permission), nil
}

// RequestPermission はユーザーに通知許可を要求する。
func (s *HTTPSurface) RequestPermission(ctx context.Context) (Permission, error) {
	var resp permissionResponse
	if err := s.client.PostJSON(ctx, "/api/v1/notifications/permission/request", nil, &resp); err != nil {
		return PermissionDefault, fmt.Errorf("許可要求に失敗: %w", err)
	}
	return Permission(resp.Permission), nil
}

// Show は通知の表示を依頼する。
func (s *HTTPSurface) Show(ctx context.Context, opts *Options) error {
	if err := s.client.PostJSON(ctx, "/api/v1/notifications", opts, nil); err != nil {
		return fmt.Errorf("通知の表示依頼に失敗: %w", err)
	}
	return nil
}

// shownResponse は表示状態APIのレスポンス。
type shownResponse struct {
	Shown bool `json:"shown"`
}

// Shown は指定タグの通知が表示中かを問い合わせる。
func (s *HTTPSurface) Shown(ctx context.Context, tag string) (bool, error) {
	var resp shownResponse
	if err := s.client.GetJSON(ctx, "/api/v1/notifications/shown?tag="+tag, &resp); err != nil {
		return false, fmt.Errorf("表示状態の取得に失敗: %w", err)
	}
	return resp.Shown, nil
}

// Close は指定タグの通知を閉じる。
func (s *HTTPSurface) Close(ctx context.Context, tag string) error {
	body := map[string]string{"tag": tag}
	if err := s.client.PostJSON(ctx, "/api/v1/notifications/close", body, nil); err != nil {
		return fmt.Errorf("通知のクローズに失敗: %w", err)
	}
	return nil
}

// OpenPage は新しいフォアグラウンドページを開くよう依頼する。
func (s *HTTPSurface) OpenPage(ctx context.Context, url string) error {
	body := map[string]string{"url": url}
	if err := s.client.PostJSON(ctx, "/api/v1/pages/open", body, nil); err != nil {
		return fmt.Errorf("ページのオープンに失敗: %w", err)
	}
	return nil
}
