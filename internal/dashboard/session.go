package dashboard

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/sessions"
)

const sessionStateKey = "state"

// SessionState: все, что дашборд помнит об операторе между запросами.
type SessionState struct {
	// ID связывает cookie с последним ответом API в ResultStore.
	ID       string      `json:"id,omitempty"`
	Filters  FilterState `json:"filters"`
	View     ViewMode    `json:"view"`
	Chart    ChartType   `json:"chart"`
	Operator string      `json:"operator,omitempty"`
	// DateError: ошибка валидации последней попытки Apply.
	DateError string `json:"dateError,omitempty"`
	// Applied: показать "Applied" после успешного Apply (одноразово).
	Applied bool `json:"applied,omitempty"`
}

func NewSessionState() *SessionState {
	return &SessionState{Filters: NewFilterState(), View: ViewDaily, Chart: ChartLine}
}

// SessionStore хранит состояние в подписанной cookie.
// Значение сериализуется в JSON строкой, чтобы не регистрировать типы в gob.
type SessionStore struct {
	store *sessions.CookieStore
	name  string
}

func NewSessionStore(secret []byte, name string, secure bool) *SessionStore {
	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   7 * 24 * 3600,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &SessionStore{store: store, name: name}
}

// Load возвращает состояние сессии. Битая или чужая cookie дает новое состояние.
func (s *SessionStore) Load(r *http.Request) (*SessionState, *sessions.Session) {
	sess, err := s.store.Get(r, s.name)
	state := NewSessionState()
	if err != nil {
		return state, sess
	}
	raw, ok := sess.Values[sessionStateKey].(string)
	if !ok {
		return state, sess
	}
	if err := json.Unmarshal([]byte(raw), state); err != nil {
		return NewSessionState(), sess
	}
	return state, sess
}

func (s *SessionStore) Save(w http.ResponseWriter, r *http.Request, sess *sessions.Session, state *SessionState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("dashboard: encode session: %w", err)
	}
	sess.Values[sessionStateKey] = string(raw)
	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("dashboard: save session: %w", err)
	}
	return nil
}
