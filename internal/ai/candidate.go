package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// CandidateInfo is the contact summary derived from parsed fields.
type CandidateInfo struct {
	FullName string `json:"fullName,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phoneNumber,omitempty"`
}

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\(?[0-9][0-9 ().\-]{7,}[0-9]`)
)

// Candidate extracts name, email and phone from the info section. The section
// may be an object, a JSON string or free text.
func Candidate(parsed ParsedResume) CandidateInfo {
	var info CandidateInfo

	switch v := parsed[FieldInfo].(type) {
	case map[string]any:
		info = fromMap(v)
	case string:
		var m map[string]any
		if err := json.Unmarshal([]byte(v), &m); err == nil {
			info = fromMap(m)
			break
		}
		info.Email = emailPattern.FindString(v)
		info.Phone = strings.TrimSpace(phonePattern.FindString(v))
	}

	return info
}

func fromMap(m map[string]any) CandidateInfo {
	return CandidateInfo{
		FullName: firstString(m, "fullName", "full_name", "name"),
		Email:    firstString(m, "email"),
		Phone:    firstString(m, "phoneNumber", "phone", "contact"),
	}
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}
