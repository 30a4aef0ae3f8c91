//go:build test

package gatt_test

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/srg/blegatt/internal/gatt"
	"github.com/srg/blegatt/internal/gatt/gatttest"
)

const testAddress = "AA:BB:CC:DD:EE:FF"

// waitFor is the ceiling for Eventually-style polling in these suites.
const waitFor = 2 * time.Second

// recordingEventSink captures lifecycle events in arrival order.
type recordingEventSink struct {
	mu     sync.Mutex
	events []gatt.LifecycleEvent
}

func (s *recordingEventSink) HandleDeviceEvent(event gatt.LifecycleEvent, _ string) {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

func (s *recordingEventSink) Events() []gatt.LifecycleEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]gatt.LifecycleEvent(nil), s.events...)
}

func (s *recordingEventSink) Count(event gatt.LifecycleEvent) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e == event {
			n++
		}
	}
	return n
}

// recordingNotificationSink captures notification records in arrival order.
type recordingNotificationSink struct {
	mu      sync.Mutex
	records []gatt.Notification
}

func (s *recordingNotificationSink) HandleNotification(n gatt.Notification) {
	s.mu.Lock()
	s.records = append(s.records, n)
	s.mu.Unlock()
}

func (s *recordingNotificationSink) Records() []gatt.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]gatt.Notification(nil), s.records...)
}

// SessionTestSuite wires a session to the fake transport with short test
// timings. Subsuites drive completions through the fake connection.
type SessionTestSuite struct {
	suite.Suite

	transport *gatttest.Transport
	sess      *gatt.Session
	events    *recordingEventSink
	notified  *recordingNotificationSink
}

// testOptions returns session options tightened for fast test turnaround.
func testOptions() *gatt.Options {
	return &gatt.Options{
		RequestTimeout: 500 * time.Millisecond,
		CleanupGrace:   50 * time.Millisecond,
		MTU:            gatt.DefaultMTU,
	}
}

func (suite *SessionTestSuite) SetupTest() {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	suite.transport = gatttest.NewTransport()
	suite.events = &recordingEventSink{}
	suite.notified = &recordingNotificationSink{}

	suite.sess = gatt.NewSession(testAddress, suite.transport, logger, testOptions())
	suite.sess.SetEventSink(suite.events)
	suite.sess.SetNotificationSink(suite.notified)
}

// SetupSubTest gives every subtest a fresh transport and session.
func (suite *SessionTestSuite) SetupSubTest() {
	suite.TearDownTest()
	suite.SetupTest()
}

func (suite *SessionTestSuite) TearDownTest() {
	if suite.sess != nil {
		_ = suite.sess.Disconnect()
	}
	suite.sess = nil
	suite.transport = nil
}

// connect establishes a connection through the fake transport.
func (suite *SessionTestSuite) connect() {
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	err := suite.sess.Connect(ctx)
	suite.Require().NoError(err, "MUST connect successfully")
	suite.Require().True(suite.sess.IsConnected(), "session MUST report connected")
}

// conn returns the live fake connection.
func (suite *SessionTestSuite) conn() *gatttest.Conn {
	c := suite.transport.LastConn()
	suite.Require().NotNil(c, "transport MUST have handed out a connection")
	return c
}

// heartRateTopology is the default peripheral layout used across the suites:
// Battery Service with a readable level, Heart Rate Service with a notifiable
// measurement, a writable control point, and an indicate-only characteristic.
func heartRateTopology() []*gatt.ServiceRecord {
	return []*gatt.ServiceRecord{
		{
			UUID:    "180F",
			Primary: true,
			Characteristics: []*gatt.CharacteristicRecord{
				{UUID: "2A19", Service: "180F", Properties: gatt.PropertyRead, Descriptors: []string{"2902"}},
			},
		},
		{
			UUID:    "180D",
			Primary: true,
			Characteristics: []*gatt.CharacteristicRecord{
				{UUID: "2A37", Service: "180D", Properties: gatt.PropertyNotify, Descriptors: []string{"2902"}},
				{UUID: "2A39", Service: "180D", Properties: gatt.PropertyWrite | gatt.PropertyWriteWithoutResponse},
				{UUID: "2A3A", Service: "180D", Properties: gatt.PropertyIndicate, Descriptors: []string{"2902"}},
			},
		},
	}
}

// discover runs a scripted discovery pass delivering the given topology.
func (suite *SessionTestSuite) discover(services []*gatt.ServiceRecord) {
	conn := suite.conn()
	conn.OnDiscover = func(cb gatt.Callbacks) {
		cb.OnServicesDiscovered(gatt.StatusSuccess, services)
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	err := suite.sess.DiscoverServices(ctx)
	suite.Require().NoError(err, "MUST discover services successfully")
}

// connectAndDiscover is the common fixture for characteristic operation tests.
func (suite *SessionTestSuite) connectAndDiscover() {
	suite.connect()
	suite.discover(heartRateTopology())
}

// eventuallyState polls until the session reaches the expected state.
func (suite *SessionTestSuite) eventuallyState(expected gatt.ConnState, msg string) {
	suite.Assert().Eventually(func() bool {
		return suite.sess.State() == expected
	}, waitFor, 5*time.Millisecond, msg)
}
