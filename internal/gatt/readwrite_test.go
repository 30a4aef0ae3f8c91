//go:build test

package gatt_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/srg/blegatt/internal/gatt"
)

type CharacteristicOpsTestSuite struct {
	SessionTestSuite
}

func (suite *CharacteristicOpsTestSuite) TestRead() {
	// GOAL: Verify characteristic reads resolve with the completion payload and fail with categorized errors
	//
	// TEST SCENARIO: Reads under different completion outcomes → value or error matches the stack's answer

	suite.Run("successful read", func() {
		// GOAL: Verify a read returns the payload the stack delivered
		//
		// TEST SCENARIO: Scripted completion with a battery level → Read returns it → command carried the right key

		suite.connectAndDiscover()
		conn := suite.conn()
		conn.OnRead = func(key gatt.CharacteristicKey, cb gatt.Callbacks) {
			cb.OnCharacteristicRead(key, gatt.StatusSuccess, []byte{85})
		}

		value, err := suite.sess.Read(context.Background(), "180F", "2A19")

		suite.Assert().NoError(err, "read MUST succeed")
		suite.Assert().Equal([]byte{85}, value, "value MUST match the stack payload")

		cmd := conn.WaitForCommand("read", waitFor)
		suite.Require().NotNil(cmd, "read command MUST be recorded")
		suite.Assert().Equal("180f/2a19", cmd.Key.String(), "command MUST target the normalized key")
	})

	suite.Run("failed read carries the status", func() {
		// GOAL: Verify a read failure resolves with the operation kind and status, and frees the slot
		//
		// TEST SCENARIO: Completion with a failure status → OperationError{read, status} → a retry succeeds

		suite.connectAndDiscover()
		conn := suite.conn()
		conn.OnRead = func(key gatt.CharacteristicKey, cb gatt.Callbacks) {
			cb.OnCharacteristicRead(key, gatt.StatusFailure, nil)
		}

		_, err := suite.sess.Read(context.Background(), "180f", "2a19")

		var opErr *gatt.OperationError
		suite.Assert().ErrorAs(err, &opErr, "error MUST be OperationError")
		suite.Assert().Equal(gatt.OpRead, opErr.Kind, "operation kind MUST be read")
		suite.Assert().Equal(gatt.StatusFailure, opErr.Status, "error MUST carry the stack status")

		conn.OnRead = func(key gatt.CharacteristicKey, cb gatt.Callbacks) {
			cb.OnCharacteristicRead(key, gatt.StatusSuccess, []byte{1})
		}
		value, err := suite.sess.Read(context.Background(), "180f", "2a19")
		suite.Assert().NoError(err, "slot MUST be free for a retry")
		suite.Assert().Equal([]byte{1}, value, "retry MUST return the new payload")
	})

	suite.Run("unknown characteristic", func() {
		// GOAL: Verify reads are validated against the catalog before any radio command
		//
		// TEST SCENARIO: Read of an uncatalogued characteristic → NotFoundError → nothing recorded

		suite.connectAndDiscover()

		_, err := suite.sess.Read(context.Background(), "180f", "2a37")

		var notFound *gatt.NotFoundError
		suite.Assert().ErrorAs(err, &notFound, "error MUST be NotFoundError")
		suite.Assert().Equal("characteristic", notFound.Resource, "the missing level MUST be the characteristic")
		suite.Assert().Equal([]string{"180f", "2a37"}, notFound.UUIDs, "UUIDs MUST walk the hierarchy")
		suite.Assert().Equal(0, suite.conn().CommandCount("read"), "no radio command MUST be issued")
	})

	suite.Run("read before discovery", func() {
		// GOAL: Verify reads on a connected but undiscovered session resolve as service-not-found
		//
		// TEST SCENARIO: Connect without discovery → Read → NotFoundError at the service level

		suite.connect()

		_, err := suite.sess.Read(context.Background(), "180f", "2a19")

		var notFound *gatt.NotFoundError
		suite.Assert().ErrorAs(err, &notFound, "error MUST be NotFoundError")
		suite.Assert().Equal("service", notFound.Resource, "the missing level MUST be the service")
	})

	suite.Run("concurrent reads on distinct characteristics", func() {
		// GOAL: Verify per-characteristic keying lets independent reads coexist
		//
		// TEST SCENARIO: Two reads on different characteristics in flight → both resolve with their own payloads

		suite.connectAndDiscover()
		conn := suite.conn()

		release := make(chan struct{})
		conn.OnRead = func(key gatt.CharacteristicKey, cb gatt.Callbacks) {
			<-release
			if key.Characteristic == "2a19" {
				cb.OnCharacteristicRead(key, gatt.StatusSuccess, []byte{85})
			} else {
				cb.OnCharacteristicRead(key, gatt.StatusSuccess, []byte{0, 75})
			}
		}

		type outcome struct {
			value []byte
			err   error
		}
		battery := make(chan outcome, 1)
		heart := make(chan outcome, 1)
		go func() {
			v, err := suite.sess.Read(context.Background(), "180f", "2a19")
			battery <- outcome{v, err}
		}()
		go func() {
			v, err := suite.sess.Read(context.Background(), "180d", "2a37")
			heart <- outcome{v, err}
		}()

		suite.Require().Eventually(func() bool {
			return suite.conn().CommandCount("read") == 2
		}, waitFor, 5*time.Millisecond, "both reads MUST be in flight together")
		close(release)

		b := <-battery
		h := <-heart
		suite.Assert().NoError(b.err, "battery read MUST succeed")
		suite.Assert().Equal([]byte{85}, b.value, "battery read MUST get its own payload")
		suite.Assert().NoError(h.err, "heart rate read MUST succeed")
		suite.Assert().Equal([]byte{0, 75}, h.value, "heart rate read MUST get its own payload")
	})

	suite.Run("newer read overwrites the pending one", func() {
		// GOAL: Verify a second read on the same characteristic displaces the first instead of queueing
		//
		// TEST SCENARIO: First read left pending → second read issued → first resolves with ErrOverwritten, second gets the completion

		suite.connectAndDiscover()
		conn := suite.conn()

		firstErr := make(chan error, 1)
		go func() {
			_, err := suite.sess.Read(context.Background(), "180f", "2a19")
			firstErr <- err
		}()
		suite.Require().NotNil(conn.WaitForCommand("read", waitFor), "first read MUST reach the transport")

		second := make(chan error, 1)
		go func() {
			_, err := suite.sess.Read(context.Background(), "180f", "2a19")
			second <- err
		}()

		select {
		case err := <-firstErr:
			suite.Assert().ErrorIs(err, gatt.ErrOverwritten, "displaced read MUST fail with ErrOverwritten")
		case <-time.After(waitFor):
			suite.Fail("displaced read MUST be resolved")
		}

		conn.Callbacks().OnCharacteristicRead(gatt.NewCharacteristicKey("180f", "2a19"), gatt.StatusSuccess, []byte{85})

		select {
		case err := <-second:
			suite.Assert().NoError(err, "the newer read MUST own the completion")
		case <-time.After(waitFor):
			suite.Fail("the newer read MUST be resolved")
		}
	})

	suite.Run("read times out without a completion", func() {
		// GOAL: Verify the per-request timer resolves reads the stack never answers
		//
		// TEST SCENARIO: No completion scripted → ErrTimeout after the request timeout

		suite.connectAndDiscover()

		_, err := suite.sess.Read(context.Background(), "180f", "2a19")

		suite.Assert().ErrorIs(err, gatt.ErrTimeout, "unanswered read MUST fail with ErrTimeout")
	})
}

func (suite *CharacteristicOpsTestSuite) TestWrite() {
	// GOAL: Verify characteristic writes carry the payload and response mode, and fail with categorized errors
	//
	// TEST SCENARIO: Writes under different completion outcomes → command and error reflect the request

	suite.Run("write with response", func() {
		// GOAL: Verify the value and response mode reach the transport
		//
		// TEST SCENARIO: Scripted completion → Write returns nil → command carries value and withResponse

		suite.connectAndDiscover()
		conn := suite.conn()
		conn.OnWrite = func(key gatt.CharacteristicKey, value []byte, withResponse bool, cb gatt.Callbacks) {
			cb.OnCharacteristicWrite(key, gatt.StatusSuccess)
		}

		err := suite.sess.Write(context.Background(), "180d", "2a39", []byte{0x01}, true)

		suite.Assert().NoError(err, "write MUST succeed")
		cmd := conn.WaitForCommand("write", waitFor)
		suite.Require().NotNil(cmd, "write command MUST be recorded")
		suite.Assert().Equal([]byte{0x01}, cmd.Value, "command MUST carry the payload")
		suite.Assert().True(cmd.WithResponse, "command MUST request a response")
	})

	suite.Run("write without response", func() {
		// GOAL: Verify the without-response mode still resolves through the completion path
		//
		// TEST SCENARIO: Scripted completion → Write returns nil → command flagged without response

		suite.connectAndDiscover()
		conn := suite.conn()
		conn.OnWrite = func(key gatt.CharacteristicKey, value []byte, withResponse bool, cb gatt.Callbacks) {
			cb.OnCharacteristicWrite(key, gatt.StatusSuccess)
		}

		err := suite.sess.Write(context.Background(), "180d", "2a39", []byte{0x02}, false)

		suite.Assert().NoError(err, "write MUST succeed")
		cmd := conn.WaitForCommand("write", waitFor)
		suite.Require().NotNil(cmd, "write command MUST be recorded")
		suite.Assert().False(cmd.WithResponse, "command MUST NOT request a response")
	})

	suite.Run("failed write carries the status", func() {
		// GOAL: Verify a write failure resolves with the operation kind and status
		//
		// TEST SCENARIO: Completion with status 5 → OperationError{write, 5}

		suite.connectAndDiscover()
		conn := suite.conn()
		conn.OnWrite = func(key gatt.CharacteristicKey, value []byte, withResponse bool, cb gatt.Callbacks) {
			cb.OnCharacteristicWrite(key, gatt.Status(5))
		}

		err := suite.sess.Write(context.Background(), "180d", "2a39", []byte{0x01}, true)

		var opErr *gatt.OperationError
		suite.Assert().ErrorAs(err, &opErr, "error MUST be OperationError")
		suite.Assert().Equal(gatt.OpWrite, opErr.Kind, "operation kind MUST be write")
		suite.Assert().Equal(gatt.Status(5), opErr.Status, "error MUST carry the stack status")
		suite.Assert().NotErrorIs(err, gatt.ErrNotConnected, "a write failure MUST NOT masquerade as a connection error")
	})

	suite.Run("start failure", func() {
		// GOAL: Verify a write that cannot be issued resolves synchronously
		//
		// TEST SCENARIO: Transport rejects the command → ErrStartFailed → nothing recorded

		suite.connectAndDiscover()
		conn := suite.conn()
		conn.WriteErr = errors.New("radio busy")

		err := suite.sess.Write(context.Background(), "180d", "2a39", []byte{0x01}, true)

		suite.Assert().ErrorIs(err, gatt.ErrStartFailed, "error MUST wrap ErrStartFailed")
		suite.Assert().Equal(0, conn.CommandCount("write"), "no command MUST be recorded")
	})

	suite.Run("not connected", func() {
		// GOAL: Verify writes require an established connection
		//
		// TEST SCENARIO: Disconnected session → Write → ErrNotConnected

		err := suite.sess.Write(context.Background(), "180d", "2a39", []byte{0x01}, true)

		suite.Assert().ErrorIs(err, gatt.ErrNotConnected, "MUST fail with ErrNotConnected")
	})
}

func TestCharacteristicOpsSuite(t *testing.T) {
	suite.Run(t, new(CharacteristicOpsTestSuite))
}
