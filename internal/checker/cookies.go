package checker

import (
	"fmt"
	"net/http"
)

// AnalyzeCookies inspects the Set-Cookie headers of resp and returns one
// finding per missing protection, plus the number of cookies seen.
func AnalyzeCookies(resp *http.Response) ([]string, int) {
	if resp == nil {
		return nil, 0
	}

	cookies := resp.Cookies()
	issues := make([]string, 0)
	for _, cookie := range cookies {
		if !cookie.HttpOnly {
			issues = append(issues, fmt.Sprintf("Missing HttpOnly flag on cookie: %s", cookie.Name))
		}
		if !cookie.Secure {
			issues = append(issues, fmt.Sprintf("Missing Secure flag on cookie: %s", cookie.Name))
		}
		switch {
		case cookie.SameSite == 0:
			issues = append(issues, fmt.Sprintf("Missing SameSite attribute on cookie: %s", cookie.Name))
		case cookie.SameSite == http.SameSiteNoneMode && !cookie.Secure:
			issues = append(issues, fmt.Sprintf("SameSite=None without Secure on cookie: %s", cookie.Name))
		}
	}
	return issues, len(cookies)
}
