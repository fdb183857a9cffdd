package message

import (
	"encoding/json"
	"fmt"
)

// New は新しいメッセージ外装を生成する。
// payloadにはType固有のデータ構造体を渡す。JSON形式にシリアライズされる。
func New(t Type, payload any) (*Envelope, error) {
	if payload == nil {
		return &Envelope{Type: t}, nil
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("メッセージペイロードのシリアライズに失敗: %w", err)
	}
	return &Envelope{Type: t, Payload: jsonData}, nil
}

// Decode はJSONバイト列をメッセージ外装にデシリアライズする。
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("メッセージのデシリアライズに失敗: %w", err)
	}
	return &env, nil
}

// DecodePayload はメッセージ外装のPayloadを指定された型にデシリアライズする。
func DecodePayload[T any](env *Envelope) (*T, error) {
	var payload T
	if len(env.Payload) == 0 {
		return &payload, nil
	}
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return nil, fmt.Errorf("メッセージペイロードのデシリアライズに失敗: %w", err)
	}
	return &payload, nil
}

// Known は種類がこのパッケージで定義された閉じた集合に含まれるかを返す。
// 未知の種類のメッセージは受信側で無視する。
func Known(t Type) bool {
	switch t {
	case TypeSkipWaiting, TypeUpdateAvailable, TypeOpenConversation, TypeMarkRead, TypeMarkAllRead:
		return true
	}
	return false
}
