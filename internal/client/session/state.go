// Package session holds the process-wide authentication state of the client:
// the observable State, the pure transition function Reduce, the Machine that
// owns the live State, and the Manager that keeps the credential store and the
// State in step.
package session

import (
	"github.com/iudanet/medlab/internal/models"
)

// Op names an auth operation whose lifecycle drives transitions.
type Op string

const (
	OpLogin          Op = "login"
	OpRegister       Op = "register"
	OpLogout         Op = "logout"
	OpFetchProfile   Op = "fetchProfile"
	OpUpdateProfile  Op = "updateProfile"
	OpChangePassword Op = "changePassword"
	OpRefreshToken   Op = "refreshToken"
)

// Phase of an operation lifecycle
type Phase int

const (
	Pending Phase = iota
	Fulfilled
	Rejected
)

func (p Phase) String() string {
	switch p {
	case Pending:
		return "pending"
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Kind distinguishes operation lifecycle events from internal ones.
type Kind int

const (
	// KindLifecycle - pending/fulfilled/rejected одной из операций
	KindLifecycle Kind = iota
	// KindClearError сбрасывает только поле Error
	KindClearError
	// KindTokenRotated - прозрачный refresh внутри HTTP клиента
	KindTokenRotated
	// KindSessionExpired - принудительный logout после неудачного refresh
	KindSessionExpired
	// KindReset - безусловная очистка сессии (старт приложения)
	KindReset
	// KindRestored - сессия восстановлена из хранилища
	KindRestored
	// KindInitialized помечает завершение инициализации без загрузки профиля
	KindInitialized
	// KindAbandoned - операция отменена вызывающим, её результат отброшен
	KindAbandoned
)

var kindNames = map[Kind]string{
	KindLifecycle:      "lifecycle",
	KindClearError:     "clearError",
	KindTokenRotated:   "tokenRotated",
	KindSessionExpired: "sessionExpired",
	KindReset:          "reset",
	KindRestored:       "restored",
	KindInitialized:    "initialized",
	KindAbandoned:      "abandoned",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// SessionExpiredMessage is the error shown after an unrecoverable refresh failure.
const SessionExpiredMessage = "Session expired, please log in again"

// Tokens is the access/refresh pair. Empty string means "no token".
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// State is the observable session snapshot.
// IsAuthenticated == (Tokens.AccessToken != "") holds after every transition.
type State struct {
	User            *models.User
	Tokens          Tokens
	Error           string
	IsAuthenticated bool
	IsLoading       bool
	IsInitialized   bool
	SessionExpired  bool
}

// Event is a single input to Reduce.
type Event struct {
	User   *models.User
	Tokens Tokens
	Op     Op
	Error  string
	Kind   Kind
	Phase  Phase
}

// defaultErrors используются, если rejected пришёл без сообщения
var defaultErrors = map[Op]string{
	OpLogin:          "Login failed",
	OpRegister:       "Registration failed",
	OpLogout:         "Logout failed",
	OpFetchProfile:   "Failed to get profile",
	OpUpdateProfile:  "Profile update failed",
	OpChangePassword: "Failed to change password",
	OpRefreshToken:   "Token refresh failed",
}

// DefaultError returns the fallback failure message for op.
func DefaultError(op Op) string {
	if msg, ok := defaultErrors[op]; ok {
		return msg
	}
	return "Request failed"
}

// Reduce applies ev to s and returns the next state. It never mutates s.
func Reduce(s State, ev Event) State {
	next := s

	switch ev.Kind {
	case KindLifecycle:
		switch ev.Phase {
		case Pending:
			next.IsLoading = true
			next.Error = ""
		case Fulfilled:
			next = fulfilled(next, ev)
		case Rejected:
			next = rejected(next, ev)
		}
	case KindClearError:
		next.Error = ""
	case KindTokenRotated:
		// Разлогиненную сессию refresh не воскрешает
		if next.Tokens.AccessToken != "" && ev.Tokens.AccessToken != "" {
			next.Tokens.AccessToken = ev.Tokens.AccessToken
		}
	case KindSessionExpired:
		next = cleared(next)
		next.Error = ev.Error
		if next.Error == "" {
			next.Error = SessionExpiredMessage
		}
		next.SessionExpired = true
	case KindReset:
		next = cleared(next)
		next.Error = ""
	case KindRestored:
		next.Tokens = ev.Tokens
		next.User = ev.User.Clone()
		if next.Tokens.AccessToken == "" {
			next = cleared(next)
		}
	case KindInitialized:
		next.IsInitialized = true
	case KindAbandoned:
		next.IsLoading = false
	}

	next.IsAuthenticated = next.Tokens.AccessToken != ""
	return next
}

func fulfilled(s State, ev Event) State {
	s.IsLoading = false

	switch ev.Op {
	case OpLogin, OpRegister:
		s.User = ev.User.Clone()
		s.Tokens = ev.Tokens
		s.Error = ""
		s.SessionExpired = false
	case OpLogout:
		s = cleared(s)
		s.Error = ""
		s.SessionExpired = false
	case OpFetchProfile:
		s.IsInitialized = true
		if ev.User != nil {
			s.User = ev.User.Clone()
			s.Error = ""
		} else {
			// error намеренно не трогаем
			s = cleared(s)
		}
	case OpUpdateProfile:
		s.User = ev.User.Clone()
		s.Error = ""
	case OpChangePassword:
		s.Error = ""
	case OpRefreshToken:
		if s.Tokens.AccessToken != "" && ev.Tokens.AccessToken != "" {
			s.Tokens.AccessToken = ev.Tokens.AccessToken
		}
		s.Error = ""
	}
	return s
}

func rejected(s State, ev Event) State {
	s.IsLoading = false
	s.Error = ev.Error
	if s.Error == "" {
		s.Error = DefaultError(ev.Op)
	}

	switch ev.Op {
	case OpLogin, OpRegister, OpLogout, OpRefreshToken:
		s = cleared(s)
	case OpFetchProfile:
		s.IsInitialized = true
		s = cleared(s)
	case OpUpdateProfile, OpChangePassword:
		// сессия не меняется
	}
	return s
}

// ClearsSession reports whether a rejected op tears the session down.
func ClearsSession(op Op) bool {
	switch op {
	case OpLogin, OpRegister, OpLogout, OpFetchProfile, OpRefreshToken:
		return true
	default:
		return false
	}
}

func cleared(s State) State {
	s.User = nil
	s.Tokens = Tokens{}
	s.IsAuthenticated = false
	return s
}

// Constructors for lifecycle events.

// PendingEvent marks op as started.
func PendingEvent(op Op) Event {
	return Event{Kind: KindLifecycle, Op: op, Phase: Pending}
}

// FulfilledEvent marks op as succeeded with an optional payload.
func FulfilledEvent(op Op, user *models.User, tokens Tokens) Event {
	return Event{Kind: KindLifecycle, Op: op, Phase: Fulfilled, User: user, Tokens: tokens}
}

// RejectedEvent marks op as failed with a human-readable message.
func RejectedEvent(op Op, msg string) Event {
	return Event{Kind: KindLifecycle, Op: op, Phase: Rejected, Error: msg}
}
