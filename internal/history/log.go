// Package history holds conversation state: the append-only exchange log of
// one chat session, a registry of sessions, and a SQLite store that keeps
// sessions and feedback across restarts.
package history

// Exchange is one (user message, bot response) pair.
type Exchange struct {
	User string `json:"user"`
	Bot  string `json:"bot"`
}

// Log is an append-only, ordered sequence of exchanges. It is not safe for
// concurrent use; [Sessions] serialises access per session.
type Log struct {
	exchanges []Exchange
}

// NewLog returns a log seeded with the given exchanges.
func NewLog(seed ...Exchange) *Log {
	l := &Log{exchanges: make([]Exchange, 0, len(seed))}
	l.exchanges = append(l.exchanges, seed...)
	return l
}

// Append adds the newest exchange.
func (l *Log) Append(user, bot string) {
	l.exchanges = append(l.exchanges, Exchange{User: user, Bot: bot})
}

// Len returns the number of exchanges.
func (l *Log) Len() int {
	return len(l.exchanges)
}

// Exchanges returns a copy of all exchanges, oldest first.
func (l *Log) Exchanges() []Exchange {
	return l.Since(0)
}

// Last returns a copy of the most recent n exchanges, oldest first.
func (l *Log) Last(n int) []Exchange {
	if n <= 0 {
		return nil
	}
	return l.Since(max(len(l.exchanges)-n, 0))
}

// Since returns a copy of the exchanges from index i onwards.
func (l *Log) Since(i int) []Exchange {
	if i < 0 {
		i = 0
	}
	if i >= len(l.exchanges) {
		return nil
	}
	out := make([]Exchange, len(l.exchanges)-i)
	copy(out, l.exchanges[i:])
	return out
}

// At returns the exchange at index i.
func (l *Log) At(i int) (Exchange, bool) {
	if i < 0 || i >= len(l.exchanges) {
		return Exchange{}, false
	}
	return l.exchanges[i], true
}
