package mqtt

import "strings"

// DefaultPrefix is used when no topic prefix is configured.
const DefaultPrefix = "showrunner"

// Topics builds topic names under a prefix.
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// Status returns the retained online/offline topic.
func (t Topics) Status() string {
	return t.prefix() + "/status"
}

// Event returns the topic for one domain event. The kind's "entity:"
// prefix is dropped.
func (t Topics) Event(entity, id, kind string) string {
	if i := strings.IndexByte(kind, ':'); i >= 0 {
		kind = kind[i+1:]
	}
	return t.prefix() + "/events/" + sanitize(entity) + "/" + sanitize(id) + "/" + sanitize(kind)
}

// AllEvents matches every event topic.
func (t Topics) AllEvents() string {
	return t.prefix() + "/events/#"
}

// EntityEvents matches every event of one entity.
func (t Topics) EntityEvents(entity, id string) string {
	return t.prefix() + "/events/" + sanitize(entity) + "/" + sanitize(id) + "/+"
}

// sanitize keeps ids from introducing levels or wildcards.
func sanitize(s string) string {
	if s == "" {
		return "_"
	}
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(s)
}
