package intake

import (
	"net/url"
	"strings"
)

// LinkBuilder turns tokens into the absolute self-service URLs embedded in
// notification emails.
type LinkBuilder struct {
	base string
}

func NewLinkBuilder(base string) LinkBuilder {
	return LinkBuilder{base: strings.TrimRight(base, "/")}
}

func (l LinkBuilder) Configured() bool {
	return l.base != ""
}

// ManageURL is the durable edit link for a submission.
func (l LinkBuilder) ManageURL(manageToken string) string {
	if manageToken == "" {
		return ""
	}
	return l.base + "/manage/" + url.PathEscape(manageToken)
}

// DeleteURL is the durable soft-delete link for a submission.
func (l LinkBuilder) DeleteURL(deleteToken string) string {
	if deleteToken == "" {
		return ""
	}
	return l.base + "/delete/" + url.PathEscape(deleteToken)
}
