package analytics

import "strings"

// ExtractEmail возвращает первый токен content, содержащий "@".
// Формат content: "User active CMMS - Acme Corp alice@acme.io /path".
func ExtractEmail(content string) string {
	for _, part := range strings.Fields(content) {
		if strings.Contains(part, "@") {
			return part
		}
	}
	return ""
}

// ExtractCompanyName достает имя компании из content: всё после " - "
// до токена с email (или до пути "/..."). Пусто, если разделителя нет.
func ExtractCompanyName(content string) string {
	_, rest, ok := strings.Cut(content, " - ")
	if !ok {
		return ""
	}

	var name []string
	for _, part := range strings.Fields(rest) {
		if strings.Contains(part, "@") || strings.HasPrefix(part, "/") {
			break
		}
		name = append(name, part)
	}
	return strings.Join(name, " ")
}

// companyNames: кэш id -> имя. Имя берется из первого события компании,
// в котором удалось его извлечь; иначе остается id.
type companyNames map[string]string

func (c companyNames) learn(companyID, content string) {
	if name, ok := c[companyID]; ok && name != companyID {
		return
	}
	if name := ExtractCompanyName(content); name != "" {
		c[companyID] = name
		return
	}
	if _, ok := c[companyID]; !ok {
		c[companyID] = companyID
	}
}

func (c companyNames) name(companyID string) string {
	if name, ok := c[companyID]; ok {
		return name
	}
	return companyID
}
