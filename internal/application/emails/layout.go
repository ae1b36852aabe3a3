package emails

import (
	"fmt"
	"strings"
	"time"
)

const (
	themePrimary = "#00cc66"
	themeText    = "#1F2937"
	themeBgBody  = "#F3F4F6"
)

// EmailLayout wraps content in the shared transactional email layout.
func EmailLayout(contentHTML string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>House Marketplace</title>
  <style>
    body { margin: 0; padding: 0; background-color: %s; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; color: %s; }
    .content p { font-size: 16px; line-height: 1.6; }
    .button { display: inline-block; background-color: %s; color: #ffffff !important; padding: 12px 32px; border-radius: 6px; font-weight: 600; text-decoration: none; }
  </style>
</head>
<body>
  <table role="presentation" width="100%%" cellspacing="0" cellpadding="0">
    <tr>
      <td align="center" style="padding: 40px 0;">
        <table role="presentation" width="600" cellspacing="0" cellpadding="0" style="background-color: #FFFFFF; border-radius: 8px;">
          <tr><td class="content" style="padding: 40px 48px;">%s</td></tr>
          <tr><td align="center" style="padding: 0 48px 32px 48px; font-size: 13px; color: #6B7280;">© %d House Marketplace</td></tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>`, themeBgBody, themeText, themePrimary, contentHTML, time.Now().Year())
}

// EscapeHTML escapes HTML specials for safe interpolation.
func EscapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}
