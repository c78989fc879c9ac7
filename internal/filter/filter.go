package filter

import "strings"

// ShouldPublish решает, публиковать ли статью по её хэштегам.
// Срабатывает по вхождению подстроки без учёта регистра: достаточно,
// чтобы любое стоп-слово встретилось внутри любого хэштега.
// Пустой список стоп-слов пропускает всё.
func ShouldPublish(hashtags, skipKeywords []string) bool {
	for _, keyword := range skipKeywords {
		kw := strings.ToLower(strings.TrimSpace(keyword))
		if kw == "" {
			continue
		}
		for _, tag := range hashtags {
			if strings.Contains(strings.ToLower(tag), kw) {
				return false
			}
		}
	}
	return true
}
