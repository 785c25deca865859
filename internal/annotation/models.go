package annotation

import (
	"fmt"
	"strings"
	"time"

	"rawlabel/internal/services"
)

// Key names a labelled attribute of an image.
type Key string

const (
	KeyType  Key = "type"
	KeyMake  Key = "make"
	KeyModel Key = "model"
	KeyBody  Key = "body"
	KeyColor Key = "color"
)

// Keys lists every annotation key in display order.
var Keys = []Key{KeyType, KeyMake, KeyModel, KeyBody, KeyColor}

// ParseKey validates raw against the closed key set.
func ParseKey(raw string) (Key, error) {
	key := Key(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Keys {
		if key == known {
			return key, nil
		}
	}
	return "", fmt.Errorf("%w: %q", services.ErrInvalidKey, raw)
}

// ProposalID identifies a stored proposal.
type ProposalID int64

// Image is a registered source image.
type Image struct {
	ID        int64     `json:"id"`
	SourceID  string    `json:"source"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
}

// Vote is one voter's weight on a proposal.
type Vote struct {
	Voter     string    `json:"voter"`
	Weight    int       `json:"weight"`
	CreatedAt time.Time `json:"created_at"`
}

// Consensus is the accepted value for one (image, key).
type Consensus struct {
	Key   Key    `json:"key"`
	Value string `json:"value"`
	Score int    `json:"score"`
	// Support counts proposals backing Value.
	Support int `json:"support"`
	// Contenders counts distinct proposed values, winner included.
	Contenders int       `json:"contenders"`
	ProposedAt time.Time `json:"proposed_at"`
}

// ProposalTally is a live proposal with its net weight.
type ProposalTally struct {
	ID         ProposalID `json:"id"`
	Author     string     `json:"author"`
	Value      string     `json:"value"`
	CreatedAt  time.Time  `json:"created_at"`
	Weight     int        `json:"weight"`
	ValueScore int        `json:"value_score"`
	Rank       int        `json:"rank"`
	Votes      []Vote     `json:"votes"`
}

// ImageSummary is one listing row.
type ImageSummary struct {
	Image
	Annotations map[Key]string `json:"annotations"`
}

// PageRequest selects a slice of a listing.
type PageRequest struct {
	Token string
	Size  int
}

// Page is a listing slice; NextToken is empty on the last page.
type Page struct {
	Images    []ImageSummary `json:"images"`
	Total     int            `json:"total"`
	NextToken string         `json:"next_page_token,omitempty"`
}
