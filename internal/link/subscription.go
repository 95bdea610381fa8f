package link

import (
	"strings"

	"boxpilot/internal/logger"
	"boxpilot/internal/profile"
)

// ParseSubscription parses a subscription payload into profiles.
// The payload is either plain text with one link per line or that same
// text base64-encoded as a whole. Blank lines, comments and links that
// fail to parse are dropped; order of the survivors is preserved.
func ParseSubscription(content string) []*profile.Profile {
	text := strings.TrimSpace(content)

	if !strings.Contains(text, "://") {
		if decoded, err := DecodeBase64(text); err == nil && strings.Contains(decoded, "://") {
			text = decoded
		}
	}

	if looksLikeClashConfig(text) {
		logger.Log.Warnf("Subscription looks like a Clash YAML config, which is not supported; skipping")
		return nil
	}

	var profiles []*profile.Profile
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}

		p, err := Parse(line)
		if err != nil {
			logger.Log.Debugf("Skipping unparseable link: %v", err)
			continue
		}
		profiles = append(profiles, p)
	}
	return profiles
}

func looksLikeClashConfig(text string) bool {
	for _, line := range strings.SplitN(text, "\n", 50) {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "proxies:") || strings.HasPrefix(trimmed, "proxy-groups:") {
			return true
		}
	}
	return false
}
