package handler

import "net/http"

// healthResponse はヘルスチェックのレスポンス。
type healthResponse struct {
	Status string `json:"status"`
}

// Health はプロセスの稼働確認に応答する。認証・レート制限の対象外。
// GET /health
func Health(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, healthResponse{Status: "ok"})
}
