package api

import (
	"time"

	"rawlabel/internal/annotation"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Image describes a registered source image with its accepted labels.
type Image struct {
	ID          int64             `json:"id"`
	Source      string            `json:"source"`
	Filename    string            `json:"filename"`
	CreatedAt   string            `json:"createdAt,omitempty"`
	Annotations map[string]string `json:"annotations"`
}

// ImageListResponse is returned by GET /api/images.
type ImageListResponse struct {
	Images        []Image `json:"images"`
	Total         int     `json:"total"`
	NextPageToken string  `json:"nextPageToken,omitempty"`
}

// Consensus is the accepted value for one key.
type Consensus struct {
	Key        string `json:"key"`
	Value      string `json:"value"`
	Score      int    `json:"score"`
	Support    int    `json:"support"`
	Contenders int    `json:"contenders"`
	ProposedAt string `json:"proposedAt,omitempty"`
}

// AnnotationsResponse maps keys to their consensus.
type AnnotationsResponse struct {
	Source      string               `json:"source"`
	Annotations map[string]Consensus `json:"annotations"`
}

// Vote is one voter's weight.
type Vote struct {
	Voter     string `json:"voter"`
	Weight    int    `json:"weight"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// Proposal is a live proposal with its tally.
type Proposal struct {
	ID         int64  `json:"id"`
	Author     string `json:"author"`
	Value      string `json:"value"`
	CreatedAt  string `json:"createdAt,omitempty"`
	Weight     int    `json:"weight"`
	ValueScore int    `json:"valueScore"`
	Rank       int    `json:"rank"`
	Votes      []Vote `json:"votes"`
}

// ProposalListResponse is returned by GET /api/proposals.
type ProposalListResponse struct {
	Source    string     `json:"source"`
	Key       string     `json:"key"`
	Proposals []Proposal `json:"proposals"`
}

// ProposeRequest is the body of POST /api/proposals.
type ProposeRequest struct {
	Source string `json:"source"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

// ProposeResponse carries the stored proposal id (0 after a withdrawal).
type ProposeResponse struct {
	ID int64 `json:"id"`
}

// VoteRequest is the body of POST /api/proposals/{id}/votes.
type VoteRequest struct {
	Weight *int `json:"weight"`
}

// ValuesResponse lists autocompletion candidates.
type ValuesResponse struct {
	Key    string   `json:"key"`
	Values []string `json:"values"`
}

// HealthResponse reports server liveness.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// FromImageSummary converts a listing row.
func FromImageSummary(summary annotation.ImageSummary) Image {
	labels := make(map[string]string, len(summary.Annotations))
	for key, value := range summary.Annotations {
		labels[string(key)] = value
	}
	return Image{
		ID:          summary.ID,
		Source:      summary.SourceID,
		Filename:    summary.Filename,
		CreatedAt:   formatTime(summary.CreatedAt),
		Annotations: labels,
	}
}

// FromPage converts a listing page.
func FromPage(page annotation.Page) ImageListResponse {
	images := make([]Image, 0, len(page.Images))
	for _, summary := range page.Images {
		images = append(images, FromImageSummary(summary))
	}
	return ImageListResponse{Images: images, Total: page.Total, NextPageToken: page.NextToken}
}

// FromConsensus converts an accepted value.
func FromConsensus(c annotation.Consensus) Consensus {
	return Consensus{
		Key:        string(c.Key),
		Value:      c.Value,
		Score:      c.Score,
		Support:    c.Support,
		Contenders: c.Contenders,
		ProposedAt: formatTime(c.ProposedAt),
	}
}

// FromTally converts a proposal tally.
func FromTally(t annotation.ProposalTally) Proposal {
	votes := make([]Vote, 0, len(t.Votes))
	for _, v := range t.Votes {
		votes = append(votes, Vote{Voter: v.Voter, Weight: v.Weight, CreatedAt: formatTime(v.CreatedAt)})
	}
	return Proposal{
		ID:         int64(t.ID),
		Author:     t.Author,
		Value:      t.Value,
		CreatedAt:  formatTime(t.CreatedAt),
		Weight:     t.Weight,
		ValueScore: t.ValueScore,
		Rank:       t.Rank,
		Votes:      votes,
	}
}
