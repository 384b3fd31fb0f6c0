package contextkeys

type contextKey string

// В контексте лежит только идентификатор принципала. Роль никогда не берётся из запроса.
const (
	UserIDKey contextKey = "UserID"
)
