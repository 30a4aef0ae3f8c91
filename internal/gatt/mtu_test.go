//go:build test

package gatt_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/srg/blegatt/internal/gatt"
)

type MTUTestSuite struct {
	SessionTestSuite
}

func (suite *MTUTestSuite) TestRequestMTU() {
	// GOAL: Verify MTU negotiation updates the cache on success and leaves it untouched on failure
	//
	// TEST SCENARIO: Exchanges with different outcomes → cached value reflects only successful negotiations

	suite.Run("default before any exchange", func() {
		// GOAL: Verify the assumed ceiling before negotiation
		//
		// TEST SCENARIO: Fresh connected session → MTU() returns the default

		suite.connect()

		suite.Assert().Equal(gatt.DefaultMTU, suite.sess.MTU(), "MTU MUST default to 517")
	})

	suite.Run("successful exchange", func() {
		// GOAL: Verify a successful exchange returns and caches the negotiated value
		//
		// TEST SCENARIO: Peer grants 185 → RequestMTU returns 185 → MTU() reflects it

		suite.connect()
		conn := suite.conn()
		conn.OnMTU = func(mtu int, cb gatt.Callbacks) {
			cb.OnMTUChanged(gatt.StatusSuccess, 185)
		}

		negotiated, err := suite.sess.RequestMTU(context.Background(), 517)

		suite.Assert().NoError(err, "exchange MUST succeed")
		suite.Assert().Equal(185, negotiated, "negotiated value MUST be returned")
		suite.Assert().Equal(185, suite.sess.MTU(), "cache MUST hold the negotiated value")

		cmd := conn.WaitForCommand("mtu", waitFor)
		suite.Require().NotNil(cmd, "mtu command MUST be recorded")
		suite.Assert().Equal(517, cmd.MTU, "requested value MUST reach the transport")
	})

	suite.Run("failed exchange leaves the cache untouched", func() {
		// GOAL: Verify failure and success are mutually exclusive outcomes
		//
		// TEST SCENARIO: Exchange fails → OperationError → MTU() still the default

		suite.connect()
		conn := suite.conn()
		conn.OnMTU = func(mtu int, cb gatt.Callbacks) {
			cb.OnMTUChanged(gatt.StatusFailure, 0)
		}

		_, err := suite.sess.RequestMTU(context.Background(), 185)

		var opErr *gatt.OperationError
		suite.Assert().ErrorAs(err, &opErr, "error MUST be OperationError")
		suite.Assert().Equal(gatt.OpMtu, opErr.Kind, "operation kind MUST be the MTU request")
		suite.Assert().Equal(gatt.DefaultMTU, suite.sess.MTU(), "cache MUST keep the previous value")
	})

	suite.Run("cache resets on disconnect", func() {
		// GOAL: Verify a negotiated MTU does not survive the connection that negotiated it
		//
		// TEST SCENARIO: Negotiate 185, disconnect → MTU() back to the default

		suite.connect()
		suite.conn().OnMTU = func(mtu int, cb gatt.Callbacks) {
			cb.OnMTUChanged(gatt.StatusSuccess, 185)
		}
		_, err := suite.sess.RequestMTU(context.Background(), 517)
		suite.Require().NoError(err, "exchange MUST succeed")

		suite.Require().NoError(suite.sess.Disconnect(), "disconnect MUST succeed")

		suite.Assert().Equal(gatt.DefaultMTU, suite.sess.MTU(), "MTU MUST reset to the default")
	})

	suite.Run("not connected", func() {
		// GOAL: Verify negotiation requires an established connection
		//
		// TEST SCENARIO: Disconnected session → RequestMTU → ErrNotConnected

		_, err := suite.sess.RequestMTU(context.Background(), 185)

		suite.Assert().ErrorIs(err, gatt.ErrNotConnected, "MUST fail with ErrNotConnected")
	})
}

func TestMTUSuite(t *testing.T) {
	suite.Run(t, new(MTUTestSuite))
}
