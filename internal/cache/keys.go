package cache

import (
	"fmt"
	"strings"
)

// Key prefixes group entries into the three invalidation namespaces. Every
// key embeds the owning user id right after the prefix, so one user's
// invalidation can never touch another user's entries.
const (
	PrefixUser     = "user"
	PrefixMessages = "messages"
	PrefixStats    = "stats"
)

// Key builds a cache key of the form <prefix>:<uid>:<op>[:<args>].
func Key(prefix string, userID uint, op string, args ...string) string {
	b := strings.Builder{}
	fmt.Fprintf(&b, "%s:%d:%s", prefix, userID, op)
	for _, a := range args {
		b.WriteByte(':')
		b.WriteString(a)
	}
	return b.String()
}

// UsernameKey addresses the username-to-user lookup cache. It lives outside
// the per-id namespaces because the id is unknown at lookup time; it is
// deleted explicitly when the user is removed.
func UsernameKey(username string) string {
	return "user:name:" + username
}

// UserPatterns returns the glob patterns covering every per-id entry a user
// owns, one per namespace.
func UserPatterns(userID uint) []string {
	return []string{
		fmt.Sprintf("%s:%d:*", PrefixUser, userID),
		fmt.Sprintf("%s:%d:*", PrefixMessages, userID),
		fmt.Sprintf("%s:%d:*", PrefixStats, userID),
	}
}
