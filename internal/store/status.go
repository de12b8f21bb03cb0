package store

import (
    "encoding/json"
    "fmt"
    "strconv"
    "time"
)

// Status is the record kept for one assembly job.
type Status struct {
    Status   string                 `json:"status"`
    Progress int                    `json:"progress"`
    Message  string                 `json:"message"`
    Start    *time.Time             `json:"start_time,omitempty"`
    End      *time.Time             `json:"end_time,omitempty"`
    Metadata map[string]interface{} `json:"metadata,omitempty"`
}

const (
    fieldStatus   = "status"
    fieldProgress = "progress"
    fieldMessage  = "message"
    fieldStart    = "start"
    fieldEnd      = "end"
    fieldMeta     = "metadata"
)

// hashFields flattens st into Redis hash fields. Metadata travels as one JSON field.
func (st Status) hashFields() (map[string]interface{}, error) {
    f := map[string]interface{}{
        fieldStatus:   st.Status,
        fieldProgress: st.Progress,
        fieldMessage:  st.Message,
    }
    for name, t := range map[string]*time.Time{fieldStart: st.Start, fieldEnd: st.End} {
        if t != nil { f[name] = t.Format(time.RFC3339Nano) }
    }
    if st.Metadata != nil {
        b, err := json.Marshal(st.Metadata)
        if err != nil { return nil, fmt.Errorf("encode metadata: %w", err) }
        f[fieldMeta] = string(b)
    }
    return f, nil
}

// statusFromHash is the inverse of hashFields. Unparseable optional fields are left zero.
func statusFromHash(h map[string]string) Status {
    st := Status{Status: h[fieldStatus], Message: h[fieldMessage]}
    st.Progress, _ = strconv.Atoi(h[fieldProgress])
    st.Start = parseTime(h[fieldStart])
    st.End = parseTime(h[fieldEnd])
    if v := h[fieldMeta]; v != "" { _ = json.Unmarshal([]byte(v), &st.Metadata) }
    return st
}

func parseTime(v string) *time.Time {
    if v == "" { return nil }
    t, err := time.Parse(time.RFC3339Nano, v)
    if err != nil { return nil }
    return &t
}
