package message

import (
	"encoding/json"
	"testing"
	"time"
)

// TestNew はNew関数でメッセージ外装が正しく生成されることを検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("OpenConversationDataでメッセージを正常に生成できること", func(t *testing.T) {
		t.Parallel()

		data := OpenConversationData{ConversationID: "conv-1"}

		env, err := New(TypeOpenConversation, data)
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if env == nil {
			t.Fatal("New()がnilを返した")
		}

		if env.Type != TypeOpenConversation {
			t.Errorf("Type = %q, want %q", env.Type, TypeOpenConversation)
		}

		var decoded OpenConversationData
		if err := json.Unmarshal(env.Payload, &decoded); err != nil {
			t.Fatalf("Payloadのデシリアライズに失敗: %v", err)
		}
		if decoded.ConversationID != data.ConversationID {
			t.Errorf("Payload.ConversationID = %q, want %q", decoded.ConversationID, data.ConversationID)
		}
	})

	t.Run("ペイロード無しのメッセージを生成できること", func(t *testing.T) {
		t.Parallel()

		env, err := New(TypeSkipWaiting, nil)
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if env.Type != TypeSkipWaiting {
			t.Errorf("Type = %q, want %q", env.Type, TypeSkipWaiting)
		}
		if len(env.Payload) != 0 {
			t.Errorf("ペイロード無しのはずがPayloadが設定されている: %s", env.Payload)
		}
	})

	t.Run("シリアライズ不可能なペイロードでエラーが返ること", func(t *testing.T) {
		t.Parallel()

		// json.Marshalでエラーになるチャネル型を渡す
		invalidPayload := make(chan int)

		env, err := New(TypeMarkRead, invalidPayload)
		if err == nil {
			t.Fatal("New()がエラーを返すべきだが、nilが返った")
		}
		if env != nil {
			t.Error("エラー時にnilでないEnvelopeが返った")
		}
	})
}

// TestDecode はDecode関数でJSONバイト列を正しくデシリアライズできることを検証する。
func TestDecode(t *testing.T) {
	t.Parallel()

	t.Run("正常なJSONをデコードできること", func(t *testing.T) {
		t.Parallel()

		env, err := Decode([]byte(`{"type":"MarkAllRead","payload":{"conversation_ids":["a","b"]}}`))
		if err != nil {
			t.Fatalf("Decode()でエラーが発生: %v", err)
		}
		if env.Type != TypeMarkAllRead {
			t.Errorf("Type = %q, want %q", env.Type, TypeMarkAllRead)
		}
	})

	t.Run("不正なJSONでエラーが返ること", func(t *testing.T) {
		t.Parallel()

		env, err := Decode([]byte(`{invalid json`))
		if err == nil {
			t.Fatal("Decode()がエラーを返すべきだが、nilが返った")
		}
		if env != nil {
			t.Error("エラー時にnilでないEnvelopeが返った")
		}
	})
}

// TestDecodePayload はDecodePayload関数でペイロードを正しくデシリアライズできることを検証する。
func TestDecodePayload(t *testing.T) {
	t.Parallel()

	t.Run("MarkReadDataを正しくデコードできること", func(t *testing.T) {
		t.Parallel()

		original := MarkReadData{
			ConversationID: "conv-10",
			At:             time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		}

		env, err := New(TypeMarkRead, original)
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}

		decoded, err := DecodePayload[MarkReadData](env)
		if err != nil {
			t.Fatalf("DecodePayload()でエラーが発生: %v", err)
		}
		if decoded.ConversationID != original.ConversationID {
			t.Errorf("ConversationID = %q, want %q", decoded.ConversationID, original.ConversationID)
		}
		if !decoded.At.Equal(original.At) {
			t.Errorf("At = %v, want %v", decoded.At, original.At)
		}
	})

	t.Run("MarkAllReadDataを正しくデコードできること", func(t *testing.T) {
		t.Parallel()

		original := MarkAllReadData{ConversationIDs: []string{"conv-1", "conv-2"}}

		env, err := New(TypeMarkAllRead, original)
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}

		decoded, err := DecodePayload[MarkAllReadData](env)
		if err != nil {
			t.Fatalf("DecodePayload()でエラーが発生: %v", err)
		}
		if len(decoded.ConversationIDs) != 2 {
			t.Errorf("ConversationIDs = %v, want 2件", decoded.ConversationIDs)
		}
	})

	t.Run("ペイロードの無い外装からゼロ値をデコードできること", func(t *testing.T) {
		t.Parallel()

		env := &Envelope{Type: TypeSkipWaiting}

		decoded, err := DecodePayload[UpdateAvailableData](env)
		if err != nil {
			t.Fatalf("DecodePayload()でエラーが発生: %v", err)
		}
		if decoded.Version != "" {
			t.Errorf("Version = %q, want empty string", decoded.Version)
		}
	})

	t.Run("不正なJSONペイロードでエラーが返ること", func(t *testing.T) {
		t.Parallel()

		env := &Envelope{
			Type:    TypeMarkRead,
			Payload: json.RawMessage(`{invalid json`),
		}

		decoded, err := DecodePayload[MarkReadData](env)
		if err == nil {
			t.Fatal("DecodePayload()がエラーを返すべきだが、nilが返った")
		}
		if decoded != nil {
			t.Error("エラー時にnilでないデータが返った")
		}
	})
}

// TestKnown はKnown関数で閉じた集合の判定を検証する。
// 未知の種類は受信側で無視されるため、判定の正確さが前方互換性を支える。
func TestKnown(t *testing.T) {
	t.Parallel()

	known := []Type{TypeSkipWaiting, TypeUpdateAvailable, TypeOpenConversation, TypeMarkRead, TypeMarkAllRead}
	for _, tp := range known {
		if !Known(tp) {
			t.Errorf("Known(%q) = false, want true", tp)
		}
	}

	unknown := []Type{"", "FutureThing", "skipwaiting", "markread"}
	for _, tp := range unknown {
		if Known(tp) {
			t.Errorf("Known(%q) = true, want false", tp)
		}
	}
}
