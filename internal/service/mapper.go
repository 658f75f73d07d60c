package service

import (
	"strconv"
	"strings"

	"github.com/gitpulse/gitpulse/internal/github"
	"github.com/gitpulse/gitpulse/internal/models"
)

// The mappers normalize upstream items into create requests. They are pure:
// no storage or network access, and the verbatim upstream payload is carried
// into RawData for audit.

func commitRequest(c github.Commit, repo string) *models.CreateEventRequest {
	hash := c.SHA
	return &models.CreateEventRequest{
		EventID:     c.SHA,
		EventType:   models.EventTypeCommit,
		Title:       firstLine(c.Message),
		Description: c.Message,
		Author:      c.Author,
		URL:         c.HTMLURL,
		Repository:  repo,
		RawData:     string(c.Raw),
		CommitHash:  &hash,
	}
}

func issueRequest(i github.Issue, repo string) *models.CreateEventRequest {
	number := i.Number
	return &models.CreateEventRequest{
		EventID:     strconv.Itoa(i.Number),
		EventType:   models.EventTypeIssue,
		Title:       i.Title,
		Description: i.Body,
		Author:      i.Author,
		URL:         i.HTMLURL,
		Repository:  repo,
		RawData:     string(i.Raw),
		IssueNumber: &number,
	}
}

func releaseRequest(r github.Release, repo string) *models.CreateEventRequest {
	version := r.TagName
	return &models.CreateEventRequest{
		EventID:        r.TagName,
		EventType:      models.EventTypeRelease,
		Title:          r.Name,
		Description:    r.Body,
		Author:         r.Author,
		URL:            r.HTMLURL,
		Repository:     repo,
		RawData:        string(r.Raw),
		ReleaseVersion: &version,
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
