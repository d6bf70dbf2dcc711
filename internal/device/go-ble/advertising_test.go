package goble

import (
	"context"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux/adv"
	"github.com/stretchr/testify/mock"
)

var hintOptions = PeripheralOptions{
	ConnIntervalMin: 7500 * time.Microsecond,
	ConnIntervalMax: 22500 * time.Microsecond,
}

func (s *PeripheralTestSuite) TestAdvertisingPackets_Layout() {
	// GOAL: Verify the advertising data carries flags, the service and the connection interval hint,
	// and the scan response carries the local name
	//
	// TEST SCENARIO: One 128-bit service, 7.5..22.5 ms hint → hint encoded as 6..18 in 1.25 ms units

	ad, sr, err := advertisingPackets("welcome", []ble.UUID{ble.MustParse(testService)}, hintOptions)
	s.Require().NoError(err)

	adPkt := adv.NewRawPacket(ad)
	s.Equal([]byte{adv.FlagGeneralDiscoverable | adv.FlagLEOnly}, adPkt.Field(0x01))
	s.Require().Len(adPkt.UUIDs(), 1)
	s.True(adPkt.UUIDs()[0].Equal(ble.MustParse(testService)), "advertising data MUST list the service")
	s.Equal([]byte{0x06, 0x00, 0x12, 0x00}, adPkt.Field(advTypeConnIntervalRange), "hint MUST be little endian 1.25 ms counts")
	s.Empty(adPkt.LocalName(), "name MUST go to the scan response")

	srPkt := adv.NewRawPacket(sr)
	s.Equal("welcome", srPkt.LocalName())
	s.LessOrEqual(len(ad), adv.MaxEIRPacketLength)
}

func (s *PeripheralTestSuite) TestAdvertisingPackets_Overflow() {
	// GOAL: Verify the hint moves to the scan response when the advertising data is full, and that
	// services which cannot fit are reported
	//
	// TEST SCENARIO: Six 16-bit services fill the advertising data → hint in scan response;
	// two 128-bit services → error

	services := []ble.UUID{ble.UUID16(0x1800), ble.UUID16(0x1801), ble.UUID16(0x180a),
		ble.UUID16(0x180f), ble.UUID16(0x1810), ble.UUID16(0x1811)}
	ad, sr, err := advertisingPackets("welcome", services, hintOptions)
	s.Require().NoError(err)
	s.Nil(adv.NewRawPacket(ad).Field(advTypeConnIntervalRange))
	s.Equal([]byte{0x06, 0x00, 0x12, 0x00}, adv.NewRawPacket(sr).Field(advTypeConnIntervalRange))
	s.Equal("welcome", adv.NewRawPacket(sr).LocalName())

	_, _, err = advertisingPackets("welcome", []ble.UUID{ble.MustParse(testService), ble.MustParse(testCharacteristic)}, hintOptions)
	s.ErrorContains(err, "does not fit the advertising data")

	ad, _, err = advertisingPackets("welcome", []ble.UUID{ble.MustParse(testService)}, PeripheralOptions{})
	s.Require().NoError(err)
	s.Nil(adv.NewRawPacket(ad).Field(advTypeConnIntervalRange), "zero options MUST leave the hint out")
}

func (s *PeripheralTestSuite) TestStartAdvertising_RawPackets() {
	// GOAL: Verify a backend taking raw advertising data receives the hint instead of the
	// name-and-services call
	//
	// TEST SCENARIO: Packet-capable device → AdvertisePackets with the hint; stop → call returns

	dev := &mockPacketDevice{}
	p := newPeripheral(dev, hintOptions, quietLogger())

	started := make(chan []byte, 1)
	dev.On("AdvertisePackets", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		started <- args.Get(1).([]byte)
		<-args.Get(0).(context.Context).Done()
	}).Return(context.Canceled).Once()

	s.Require().NoError(p.StartAdvertising(context.Background(), "welcome", testService))

	select {
	case ad := <-started:
		s.Equal([]byte{0x06, 0x00, 0x12, 0x00}, adv.NewRawPacket(ad).Field(advTypeConnIntervalRange))
	case <-time.After(time.Second):
		s.FailNow("advertising did not start within 1s")
	}

	p.StopAdvertising()
	dev.AssertNotCalled(s.T(), "AdvertiseNameAndServices", mock.Anything, mock.Anything, mock.Anything)
	dev.AssertExpectations(s.T())
}
