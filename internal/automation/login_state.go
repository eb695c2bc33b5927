package automation

import "tradebridge/internal/models"

// ValidTransitions определяет допустимые переходы состояний входа.
// Терминальные состояния VERIFIED_SUCCESS/VERIFIED_FAILURE переходов
// не имеют: повторный вход начинается с нового трекера.
var ValidTransitions = map[string][]string{
	models.LoginStateNotStarted: {models.LoginStateNavigated, models.LoginStateFailure},
	models.LoginStateNavigated:  {models.LoginStateFormFilled, models.LoginStateFailure},
	models.LoginStateFormFilled: {models.LoginStateSubmitted, models.LoginStateFailure},
	models.LoginStateSubmitted: {
		models.LoginStateTwoFAPending,
		models.LoginStateSuccess,
		models.LoginStateFailure,
	},
	models.LoginStateTwoFAPending: {models.LoginStateSuccess, models.LoginStateFailure},
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to string) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal возвращает true для конечных состояний входа
func IsTerminal(state string) bool {
	return state == models.LoginStateSuccess || state == models.LoginStateFailure
}

// loginTracker ведет состояние одного сценария входа и уведомляет
// наблюдателя (менеджер транслирует состояния в WebSocket)
type loginTracker struct {
	state  string
	notify func(state string)
}

func newLoginTracker(notify func(state string)) *loginTracker {
	return &loginTracker{state: models.LoginStateNotStarted, notify: notify}
}

// to переводит трекер в новое состояние; недопустимый переход
// молча игнорируется, кроме перехода в FAILURE - он разрешен всегда
func (t *loginTracker) to(state string) {
	if state != models.LoginStateFailure && !CanTransition(t.state, state) {
		return
	}
	if IsTerminal(t.state) {
		return
	}
	t.state = state
	if t.notify != nil {
		t.notify(state)
	}
}
