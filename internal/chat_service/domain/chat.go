package domain

import "errors"

var ErrInvalidInput = errors.New("invalid chat tag")

// Chat is the per-chat configuration record. It exists from the first time
// the chat is referenced.
type Chat struct {
	ID   int64             `json:"id"`
	Tags map[string]string `json:"tags"`
}

// Tag returns the value of the named tag.
func (c *Chat) Tag(name string) (string, bool) {
	v, ok := c.Tags[name]
	return v, ok
}

// CloneTags returns a copy of the tags that is safe to modify.
func (c *Chat) CloneTags() map[string]string {
	out := make(map[string]string, len(c.Tags))
	for k, v := range c.Tags {
		out[k] = v
	}
	return out
}
