package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"club-ledger/internal/config"
	"club-ledger/internal/util"
)

// PreparedStatements holds the statements the repositories bind per call.
type PreparedStatements struct {
	InsertMember     *gocql.Query
	SelectMemberByID *gocql.Query
	SelectUsername   *gocql.Query
	SelectAllMembers *gocql.Query
	UpdateMember     *gocql.Query
	UpdatePassword   *gocql.Query
	UpdatePermit     *gocql.Query
	UpdateSyncd      *gocql.Query
	UpdateGuest      *gocql.Query
	UpdateToday      *gocql.Query
	UpdateOrderIndex *gocql.Query
	DeleteMember     *gocql.Query
	DeleteUsername   *gocql.Query

	SelectManagement *gocql.Query
	UpdateManagement *gocql.Query

	SelectDues *gocql.Query
	UpsertDues *gocql.Query
	DeleteDues *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.RWMutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 2
	cluster.SocketKeepalive = 30 * time.Second
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized with prepared statements",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

const memberColumns = `bucket, member_id, username, password_hash, first_name, last_name,
	phone_number, dob, attendance, permit, today, guest, recovery, syncd,
	order_index, picture_url, created_at, updated_at`

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	prepared.InsertMember = s.Session.Query(`
        INSERT INTO members (` + memberColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.SelectMemberByID = s.Session.Query(`
        SELECT ` + memberColumns + ` FROM members WHERE bucket = ? AND member_id = ?`)

	prepared.SelectUsername = s.Session.Query(`
        SELECT username, bucket, member_id FROM username_to_member WHERE username = ?`)

	prepared.SelectAllMembers = s.Session.Query(`
        SELECT ` + memberColumns + ` FROM members`)

	prepared.UpdateMember = s.Session.Query(`
        UPDATE members SET username = ?, password_hash = ?, first_name = ?, last_name = ?,
            phone_number = ?, dob = ?, attendance = ?, permit = ?, today = ?, guest = ?,
            recovery = ?, syncd = ?, order_index = ?, picture_url = ?, updated_at = ?
        WHERE bucket = ? AND member_id = ?`)

	prepared.UpdatePassword = s.Session.Query(`
        UPDATE members SET password_hash = ?, updated_at = ? WHERE bucket = ? AND member_id = ?`)

	prepared.UpdatePermit = s.Session.Query(`
        UPDATE members SET permit = ?, updated_at = ? WHERE bucket = ? AND member_id = ?`)

	prepared.UpdateSyncd = s.Session.Query(`
        UPDATE members SET syncd = ?, updated_at = ? WHERE bucket = ? AND member_id = ?`)

	prepared.UpdateGuest = s.Session.Query(`
        UPDATE members SET guest = ?, updated_at = ? WHERE bucket = ? AND member_id = ?`)

	prepared.UpdateToday = s.Session.Query(`
        UPDATE members SET today = ?, updated_at = ? WHERE bucket = ? AND member_id = ?`)

	prepared.UpdateOrderIndex = s.Session.Query(`
        UPDATE members SET order_index = ?, updated_at = ? WHERE bucket = ? AND member_id = ?`)

	prepared.DeleteMember = s.Session.Query(`
        DELETE FROM members WHERE bucket = ? AND member_id = ?`)

	prepared.DeleteUsername = s.Session.Query(`
        DELETE FROM username_to_member WHERE username = ?`)

	prepared.SelectManagement = s.Session.Query(`
        SELECT config_id, keycode, address, welcome, youtube_url, notification,
            playwhen, fee, venmo, updated_at
        FROM management WHERE config_id = ?`)

	prepared.UpdateManagement = s.Session.Query(`
        UPDATE management SET keycode = ?, address = ?, welcome = ?, youtube_url = ?,
            notification = ?, playwhen = ?, fee = ?, venmo = ?, updated_at = ?
        WHERE config_id = ?`)

	prepared.SelectDues = s.Session.Query(`
        SELECT username, paid, updated_at FROM dues WHERE username = ?`)

	prepared.UpsertDues = s.Session.Query(`
        UPDATE dues SET paid = ?, updated_at = ? WHERE username = ?`)

	prepared.DeleteDues = s.Session.Query(`
        DELETE FROM dues WHERE username = ?`)

	s.Prepared = prepared
	s.isPrepared = true

	util.Info("ScyllaDB prepared statements created")
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...)
}

func (s *ScyllaClient) HealthCheck(ctx context.Context) error {
	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}

// ScanWithRetry retries transient read failures with linear backoff.
func (s *ScyllaClient) ScanWithRetry(query *gocql.Query, dest ...interface{}) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		if err := query.Scan(dest...); err != nil {
			if err == gocql.ErrNotFound {
				return err
			}
			lastErr = err
			if i < 2 {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}
