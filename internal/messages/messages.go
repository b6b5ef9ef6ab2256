// Package messages holds the human-readable envelope messages returned by the
// event API, in English and Korean.
package messages

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys double as the English text.
const (
	ListedAll        = "Listed all events."
	ListedDate       = "Listed events for %s."
	Created          = "Event created."
	Updated          = "Event updated."
	Deleted          = "Event deleted."
	RequiredFields   = "Title, date and time are required."
	UpdateIDRequired = "The id of the event to update is required."
	DeleteIDRequired = "The id of the event to delete is required."
	NotFound         = "Event not found."
	InvalidBody      = "The request body is not valid."
	MethodNotAllowed = "Method not allowed."
	ListFailed       = "Failed to list events."
	CreateFailed     = "Failed to create the event."
	UpdateFailed     = "Failed to update the event."
	DeleteFailed     = "Failed to delete the event."
	ExportFailed     = "Failed to render the calendar."
)

var korean = map[string]string{
	ListedAll:        "모든 일정을 조회했습니다.",
	ListedDate:       "%s 날짜의 일정을 조회했습니다.",
	Created:          "새 일정이 추가되었습니다.",
	Updated:          "일정이 수정되었습니다.",
	Deleted:          "일정이 삭제되었습니다.",
	RequiredFields:   "제목, 날짜, 시간은 필수 입력 항목입니다.",
	UpdateIDRequired: "수정할 일정의 ID가 필요합니다.",
	DeleteIDRequired: "삭제할 일정의 ID가 필요합니다.",
	NotFound:         "해당 일정을 찾을 수 없습니다.",
	InvalidBody:      "요청 본문이 올바르지 않습니다.",
	MethodNotAllowed: "허용되지 않는 메서드입니다.",
	ListFailed:       "일정 조회 중 오류가 발생했습니다.",
	CreateFailed:     "일정 추가 중 오류가 발생했습니다.",
	UpdateFailed:     "일정 수정 중 오류가 발생했습니다.",
	DeleteFailed:     "일정 삭제 중 오류가 발생했습니다.",
	ExportFailed:     "캘린더 생성 중 오류가 발생했습니다.",
}

var supported = map[string]language.Tag{
	"en": language.English,
	"ko": language.Korean,
}

// Catalog picks a printer for a request's Accept-Language header.
type Catalog struct {
	cat     catalog.Catalog
	tags    []language.Tag
	matcher language.Matcher
}

// New builds the catalog. fallback ("en" or "ko") is used when the client
// sends no acceptable language.
func New(fallback string) (*Catalog, error) {
	def, ok := supported[strings.ToLower(strings.TrimSpace(fallback))]
	if !ok {
		return nil, fmt.Errorf("unsupported language %q", fallback)
	}

	b := catalog.NewBuilder(catalog.Fallback(def))
	for key, text := range korean {
		if err := b.SetString(language.English, key, key); err != nil {
			return nil, fmt.Errorf("set english message: %w", err)
		}
		if err := b.SetString(language.Korean, key, text); err != nil {
			return nil, fmt.Errorf("set korean message: %w", err)
		}
	}

	// The matcher treats the first tag as the default.
	tags := []language.Tag{def}
	for _, t := range []language.Tag{language.English, language.Korean} {
		if t != def {
			tags = append(tags, t)
		}
	}
	return &Catalog{cat: b, tags: tags, matcher: language.NewMatcher(tags)}, nil
}

// Printer returns a printer for the best match of acceptLanguage.
func (c *Catalog) Printer(acceptLanguage string) *message.Printer {
	tag := c.tags[0]
	if prefs, _, err := language.ParseAcceptLanguage(acceptLanguage); err == nil && len(prefs) > 0 {
		if _, idx, conf := c.matcher.Match(prefs...); conf != language.No {
			tag = c.tags[idx]
		}
	}
	return message.NewPrinter(tag, message.Catalog(c.cat))
}
