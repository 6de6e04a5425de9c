//go:build integration

package outbox_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"certreg/internal/outbox"
	"certreg/internal/platform/config"
	"certreg/internal/platform/kafka/consumer"
	"certreg/internal/platform/kafka/producer"
	"certreg/internal/platform/logger"
	id "certreg/pkg/domain"
	audit "certreg/pkg/platform/audit"
	auditconsumer "certreg/pkg/platform/audit/consumer"
	auditpostgres "certreg/pkg/platform/audit/store/postgres"
	"certreg/pkg/testutil/containers"
)

type RelayIntegrationSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	redpanda *containers.RedpandaContainer
}

func TestRelayIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RelayIntegrationSuite))
}

func (s *RelayIntegrationSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.redpanda = mgr.GetRedpanda(s.T())
}

func (s *RelayIntegrationSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "outbox", "audit_log")
	s.Require().NoError(err)
}

func (s *RelayIntegrationSuite) kafkaConfig() config.Kafka {
	return config.Kafka{
		Brokers:       []string{s.redpanda.Broker},
		Topic:         "certreg.events." + uuid.NewString(),
		ConsumerGroup: "certreg-audit-" + uuid.NewString(),
	}
}

func (s *RelayIntegrationSuite) appendEvents(n int) {
	ctx := context.Background()
	store := auditpostgres.New(s.postgres.DB)
	for i := 0; i < n; i++ {
		certID := id.CertificateID(i)
		err := store.Append(ctx, audit.Event{
			ID:            uuid.NewString(),
			Action:        audit.EventCertificateMinted,
			Timestamp:     time.Now().UTC(),
			Actor:         id.MustPrincipal("ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"),
			CertificateID: &certID,
			To:            id.MustPrincipal("ST1SJ3DTE5DN7X54YDH5D64R3BCB6A2AG2ZQ8YPD5"),
			Course:        "Blockchain Basics",
			Grade:         "A",
		})
		s.Require().NoError(err)
	}
}

func (s *RelayIntegrationSuite) TestOutboxReachesAuditLog() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	cfg := s.kafkaConfig()

	prod, err := producer.New(cfg, logger.Discard())
	s.Require().NoError(err)
	defer prod.Close()
	s.Require().NoError(prod.EnsureTopic(ctx, 1, 1))
	s.Require().NoError(prod.EnsureTopic(ctx, 1, 1), "existing topic is accepted")

	s.appendEvents(5)
	outboxStore := outbox.NewPostgresStore(s.postgres.DB)
	relay, err := outbox.NewRelay(outboxStore, prod, outbox.WithBatchSize(2))
	s.Require().NoError(err)

	total := 0
	for {
		n, err := relay.RelayOnce(ctx)
		s.Require().NoError(err)
		if n == 0 {
			break
		}
		total += n
	}
	s.Equal(5, total)
	pending, err := outboxStore.Pending(ctx)
	s.Require().NoError(err)
	s.Zero(pending)

	logStore := auditpostgres.NewLogStore(s.postgres.DB)
	router := auditconsumer.NewRouter(logger.Discard(), nil)
	router.Register(string(audit.CategoryCompliance), auditconsumer.NewComplianceHandler(logStore, logger.Discard()))
	router.Register(string(audit.CategorySecurity), auditconsumer.NewSecurityHandler(logStore, logger.Discard()))

	cons, err := consumer.New(cfg, logger.Discard())
	s.Require().NoError(err)
	defer cons.Close()

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- cons.Run(runCtx, router) }()

	s.Eventually(func() bool {
		var n int
		if err := s.postgres.DB.QueryRowContext(ctx, `SELECT count(*) FROM audit_log`).Scan(&n); err != nil {
			return false
		}
		return n == 5
	}, 30*time.Second, 200*time.Millisecond)

	stop()
	s.Require().NoError(<-done)

	history, err := logStore.ListByCertificate(ctx, 3)
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Equal(audit.EventCertificateMinted, history[0].Action)
	s.Equal("Blockchain Basics", history[0].Course)
}

func (s *RelayIntegrationSuite) TestConcurrentRelaysDoNotDoublePublish() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	s.appendEvents(10)

	outboxStore := outbox.NewPostgresStore(s.postgres.DB)
	pub := &countingPublisher{}
	a, err := outbox.NewRelay(outboxStore, pub, outbox.WithBatchSize(3))
	s.Require().NoError(err)
	b, err := outbox.NewRelay(outboxStore, pub, outbox.WithBatchSize(3))
	s.Require().NoError(err)

	results := make(chan int, 2)
	drain := func(r *outbox.Relay) {
		total := 0
		for {
			n, err := r.RelayOnce(ctx)
			if err != nil || n == 0 {
				break
			}
			total += n
		}
		results <- total
	}
	go drain(a)
	go drain(b)

	s.Equal(10, <-results+<-results)
	s.Equal(10, pub.total())
}

type countingPublisher struct {
	mu sync.Mutex
	n  int
}

func (p *countingPublisher) Publish(_ context.Context, msgs ...producer.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.n += len(msgs)
	return nil
}

func (p *countingPublisher) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.n
}
