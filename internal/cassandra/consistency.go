package cassandra

import (
	"errors"
	"strings"

	"github.com/gocql/gocql"
)

// ConsistencyPolicy resolves the consistency level for each kind of
// statement the engine prepares, fixed at preparation time; per-invocation
// overrides are not supported.
type ConsistencyPolicy struct {
	Read           gocql.Consistency
	WriteDataPoint gocql.Consistency
	WriteMeta      gocql.Consistency
}

// NewConsistencyPolicy parses the three configured consistency names.
// Unrecognized names fail fast at startup rather than silently
// defaulting, since a wrong consistency level is a correctness bug, not
// a degraded-mode concern.
func NewConsistencyPolicy(read, writeDataPoint, writeMeta string) (ConsistencyPolicy, error) {
	r, err := parseConsistency(read)
	if err != nil {
		return ConsistencyPolicy{}, newDatastoreError("parse read consistency", err)
	}
	wd, err := parseConsistency(writeDataPoint)
	if err != nil {
		return ConsistencyPolicy{}, newDatastoreError("parse data-point write consistency", err)
	}
	wm, err := parseConsistency(writeMeta)
	if err != nil {
		return ConsistencyPolicy{}, newDatastoreError("parse meta write consistency", err)
	}
	return ConsistencyPolicy{Read: r, WriteDataPoint: wd, WriteMeta: wm}, nil
}

var consistencyByName = map[string]gocql.Consistency{
	"ANY":          gocql.Any,
	"ONE":          gocql.One,
	"TWO":          gocql.Two,
	"THREE":        gocql.Three,
	"QUORUM":       gocql.Quorum,
	"ALL":          gocql.All,
	"LOCAL_QUORUM": gocql.LocalQuorum,
	"EACH_QUORUM":  gocql.EachQuorum,
	"LOCAL_ONE":    gocql.LocalOne,
}

func parseConsistency(name string) (gocql.Consistency, error) {
	c, ok := consistencyByName[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return 0, errors.New("unrecognized consistency level: " + name)
	}
	return c, nil
}
