package transfer

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// Scheme is the URL scheme for bus-addressed transfers. A transfer URL is
// grid://<node-identity>/<resource-token>; the token scopes the transfer's
// service address so concurrent transfers never collide.
const Scheme = "grid"

type URL struct {
	Node  uuid.UUID
	Token string
}

func ParseURL(raw string) (*URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse transfer url: %w", err)
	}
	if u.Scheme != Scheme {
		return nil, fmt.Errorf("unsupported scheme: %q", u.Scheme)
	}

	node, err := uuid.Parse(u.Host)
	if err != nil {
		return nil, fmt.Errorf("invalid node identity: %q", u.Host)
	}

	token := strings.TrimPrefix(u.Path, "/")
	if token == "" || strings.Contains(token, "/") {
		return nil, fmt.Errorf("invalid resource token: %q", u.Path)
	}

	return &URL{Node: node, Token: token}, nil
}

func (u *URL) String() string {
	return fmt.Sprintf("%s://%s/%s", Scheme, u.Node, u.Token)
}
