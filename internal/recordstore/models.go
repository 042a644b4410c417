package recordstore

// Record is the wire form of a zone record: an id plus uninterpreted
// fields. Decoding required fields is the sync engine's job.
type Record struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

type ChangesResponse struct {
	Changed  []Record `json:"changed"`
	Deleted  []string `json:"deleted"`
	NewToken string   `json:"newToken"`
}

type UpsertRequest struct {
	Owner   string   `json:"owner"`
	Records []Record `json:"records"`
}
