package mail

import (
	"fmt"
	"mime"
	"strings"
)

func encodeHeader(s string) string {
	return mime.BEncoding.Encode("UTF-8", s)
}

// Invitation is the message asking an external account to approve its
// connection to the agency.
func Invitation(to, companyName, inviteURL string) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "%s から接続申請が届いています。\n\n", companyName)
	b.WriteString("以下のURLからログインし、接続申請を承認してください。\n")
	fmt.Fprintf(&b, "%s\n\n", inviteURL)
	b.WriteString("このメールに心当たりがない場合は破棄してください。\n")
	return Message{
		To:      to,
		Subject: fmt.Sprintf("[%s] 接続申請のお知らせ", companyName),
		Body:    b.String(),
	}
}
