package models

import "strings"

// keyword buckets for inferTaskKind, checked in priority order so a task
// description mentioning several domains picks the most specific match.
var taskKindKeywords = []struct {
	kind     TaskKind
	keywords []string
}{
	{TaskKindDatabase, []string{"migration", "schema", "database", "postgres", "sql", "query"}},
	{TaskKindUI, []string{"ui", "frontend", "component", "page", "button", "form", "css", "react", "view"}},
	{TaskKindAPI, []string{"api", "endpoint", "route", "handler", "rest", "http request"}},
	{TaskKindConfig, []string{"config", "configuration", "env var", "setting", "deploy", "build"}},
	{TaskKindIntegration, []string{"integration", "end-to-end", "e2e", "cross-service", "workflow"}},
}

func inferTaskKind(text string) TaskKind {
	lower := strings.ToLower(text)
	for _, bucket := range taskKindKeywords {
		for _, kw := range bucket.keywords {
			if strings.Contains(lower, kw) {
				return bucket.kind
			}
		}
	}
	return TaskKindGeneral
}
