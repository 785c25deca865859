package annotation

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"rawlabel/internal/config"
	"rawlabel/internal/query"
	"rawlabel/internal/services"
)

const defaultSort = "filename"

// Registry describes the searchable and sortable image columns. Annotation
// keys are computed from the consensus map and evaluated in memory.
var Registry = func() query.Registry {
	cols := []query.Column{
		{Name: "id", Column: "i.id", Type: query.Int, Exact: true},
		{Name: "source", Column: "i.source_id", Type: query.String, CaseInsensitive: true},
		{Name: "filename", Column: "i.filename", Type: query.String, CaseInsensitive: true},
		{Name: "created_at", Column: "i.created_at", Type: query.Time, Exact: true},
	}
	for _, key := range Keys {
		cols = append(cols, query.Column{Name: string(key), Type: query.String, CaseInsensitive: true, Computed: true})
	}
	return query.NewRegistry(cols...)
}()

// RegisterImage records sourceID in the registry if it is not already there.
func (s *Store) RegisterImage(ctx context.Context, sourceID string) (Image, error) {
	sourceID, err := cleanSourceID(sourceID)
	if err != nil {
		return Image{}, err
	}
	var img Image
	err = s.withTx(ctx, "register image", func(tx *sql.Tx) error {
		if _, err := s.ensureImage(ctx, tx, sourceID); err != nil {
			return err
		}
		var created string
		if err := tx.QueryRowContext(ctx,
			`SELECT id, source_id, filename, created_at FROM images WHERE source_id = ?`, sourceID,
		).Scan(&img.ID, &img.SourceID, &img.Filename, &created); err != nil {
			return err
		}
		img.CreatedAt, err = parseTimestamp(created)
		return err
	})
	if err != nil {
		return Image{}, err
	}
	return img, nil
}

// ListImages filters and sorts the registry. Stored-column criteria run in
// SQL; annotation criteria and annotation sorts need the consensus of every
// candidate image and run in memory. Ties always break on image id.
func (s *Store) ListImages(ctx context.Context, criteria map[string]any, sortKey string, page PageRequest) (Page, error) {
	if strings.TrimSpace(sortKey) == "" {
		sortKey = defaultSort
	}
	filter, ordering, err := query.Build(Registry, criteria, sortKey)
	if err != nil {
		return Page{}, err
	}
	offset, err := decodePageToken(page.Token)
	if err != nil {
		return Page{}, err
	}
	size := page.Size
	switch {
	case size <= 0:
		size = s.opts.PageSize
	case size > config.MaxPageSize:
		size = config.MaxPageSize
	}

	stored, computed := filter.Split()
	where, args := stored.SQL()

	if computed.Empty() && !ordering.Column.Computed {
		return s.listStored(ctx, where, args, ordering, offset, size)
	}
	return s.listComputed(ctx, where, args, computed, ordering, offset, size)
}

func (s *Store) listStored(ctx context.Context, where string, args []any, ordering query.Ordering, offset, size int) (Page, error) {
	var total int
	countQ := `SELECT COUNT(1) FROM images i`
	if where != "" {
		countQ += " WHERE " + where
	}
	if err := s.db.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return Page{}, classify("list images", err)
	}

	images, err := s.selectImages(ctx, where, args, ordering, fmt.Sprintf(" LIMIT %d OFFSET %d", size, offset))
	if err != nil {
		return Page{}, err
	}
	ids := make([]any, len(images))
	placeholders := make([]string, len(images))
	for i, img := range images {
		ids[i] = img.ID
		placeholders[i] = "?"
	}
	byImage := map[int64]map[Key]Consensus{}
	if len(images) > 0 {
		records, err := s.loadProposals(ctx, "p.image_id IN ("+strings.Join(placeholders, ",")+")", ids...)
		if err != nil {
			return Page{}, err
		}
		byImage = s.groupConsensus(records)
	}

	out := Page{Images: make([]ImageSummary, 0, len(images)), Total: total}
	for _, img := range images {
		out.Images = append(out.Images, summarize(img, byImage[img.ID]))
	}
	if offset+len(images) < total {
		out.NextToken = encodePageToken(offset + len(images))
	}
	return out, nil
}

func (s *Store) listComputed(ctx context.Context, where string, args []any, computed query.Filter, ordering query.Ordering, offset, size int) (Page, error) {
	images, err := s.selectImages(ctx, where, args, query.Ordering{}, "")
	if err != nil {
		return Page{}, err
	}
	records, err := s.loadProposals(ctx, "")
	if err != nil {
		return Page{}, err
	}
	byImage := s.groupConsensus(records)

	type candidate struct {
		summary ImageSummary
		row     query.Row
	}
	matched := make([]candidate, 0, len(images))
	for _, img := range images {
		summary := summarize(img, byImage[img.ID])
		row := rowOf(summary)
		if computed.Match(row) {
			matched = append(matched, candidate{summary: summary, row: row})
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if c := ordering.Compare(matched[i].row, matched[j].row); c != 0 {
			return c < 0
		}
		return matched[i].summary.ID < matched[j].summary.ID
	})

	out := Page{Images: []ImageSummary{}, Total: len(matched)}
	if offset < len(matched) {
		end := offset + size
		if end > len(matched) {
			end = len(matched)
		}
		for _, c := range matched[offset:end] {
			out.Images = append(out.Images, c.summary)
		}
		if end < len(matched) {
			out.NextToken = encodePageToken(end)
		}
	}
	return out, nil
}

func (s *Store) selectImages(ctx context.Context, where string, args []any, ordering query.Ordering, limit string) ([]Image, error) {
	q := `SELECT i.id, i.source_id, i.filename, i.created_at FROM images i`
	if where != "" {
		q += " WHERE " + where
	}
	order := "i.id ASC"
	if clause := ordering.SQL(); clause != "" {
		order = clause + ", " + order
	}
	q += " ORDER BY " + order + limit

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify("list images", err)
	}
	defer rows.Close()
	var images []Image
	for rows.Next() {
		var (
			img     Image
			created string
		)
		if err := rows.Scan(&img.ID, &img.SourceID, &img.Filename, &created); err != nil {
			return nil, classify("list images", err)
		}
		if img.CreatedAt, err = parseTimestamp(created); err != nil {
			return nil, classify("list images", err)
		}
		images = append(images, img)
	}
	return images, classify("list images", rows.Err())
}

func (s *Store) groupConsensus(records []proposalRecord) map[int64]map[Key]Consensus {
	byImage := make(map[int64][]proposalRecord)
	for _, r := range records {
		byImage[r.ImageID] = append(byImage[r.ImageID], r)
	}
	out := make(map[int64]map[Key]Consensus, len(byImage))
	for id, group := range byImage {
		out[id] = decideAll(group, s.opts.AuthorWeight)
	}
	return out
}

func summarize(img Image, consensus map[Key]Consensus) ImageSummary {
	labels := make(map[Key]string, len(consensus))
	for key, c := range consensus {
		labels[key] = c.Value
	}
	return ImageSummary{Image: img, Annotations: labels}
}

func rowOf(summary ImageSummary) query.Row {
	row := query.Row{
		"id":         summary.ID,
		"source":     summary.SourceID,
		"filename":   summary.Filename,
		"created_at": summary.CreatedAt,
	}
	for _, key := range Keys {
		if value, ok := summary.Annotations[key]; ok {
			row[string(key)] = value
		}
	}
	return row
}

const pageTokenPrefix = "o:"

func encodePageToken(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(pageTokenPrefix + strconv.Itoa(offset)))
}

func decodePageToken(token string) (int, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || !strings.HasPrefix(string(raw), pageTokenPrefix) {
		return 0, fmt.Errorf("%w: malformed page token", services.ErrInvalidInput)
	}
	offset, err := strconv.Atoi(strings.TrimPrefix(string(raw), pageTokenPrefix))
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("%w: malformed page token", services.ErrInvalidInput)
	}
	return offset, nil
}
