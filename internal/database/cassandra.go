package database

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"
)

// cassandraQueryTimeout bounds archive reads and writes; the event
// archive is best-effort and must never stall call teardown.
const cassandraQueryTimeout = 5 * time.Second

// CassandraDB holds the session backing the call event archive.
type CassandraDB struct {
	Session *gocql.Session
}

// NewCassandraDB connects to the archive cluster. Quorum consistency
// keeps archived events readable after a single node loss.
func NewCassandraDB(hosts []string, keyspace string) (*CassandraDB, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = cassandraQueryTimeout

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create Cassandra session: %w", err)
	}
	return &CassandraDB{Session: session}, nil
}

// Close closes the underlying session.
func (c *CassandraDB) Close() {
	c.Session.Close()
}
