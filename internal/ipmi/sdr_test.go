package ipmi_test

import (
	"context"
	"encoding/binary"
	"testing"

	"codeberg.org/mutker/smfd/internal/errors"
	"codeberg.org/mutker/smfd/internal/ipmi"
	"codeberg.org/mutker/smfd/internal/sdrcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordOpts struct {
	recordType byte
	sensorType byte
	sensorNum  byte
	format     byte
	m          uint16
	b          uint16
	exps       byte
	linear     byte
	name       string
}

func buildRecord(id uint16, o recordOpts) []byte {
	if o.recordType == 0 {
		o.recordType = ipmi.RecordTypeFullSensor
	}
	data := make([]byte, 48+len(o.name))
	binary.LittleEndian.PutUint16(data, id)
	data[2] = 0x51
	data[3] = o.recordType
	data[4] = byte(len(data) - 5)
	data[5] = 0x20
	data[7] = o.sensorNum
	data[12] = o.sensorType
	data[20] = o.format << 6
	data[23] = o.linear
	data[24] = byte(o.m)
	data[25] = byte(o.m>>8&0x03) << 6
	data[26] = byte(o.b)
	data[27] = byte(o.b>>8&0x03) << 6
	data[29] = o.exps
	data[47] = 0xc0 | byte(len(o.name))
	copy(data[48:], o.name)

	return data
}

func fanRecord(id uint16, num byte, name string) []byte {
	return buildRecord(id, recordOpts{sensorType: ipmi.SensorTypeFan, sensorNum: num, m: 70, name: name})
}

func TestParseFullSensorRecord(t *testing.T) {
	rec, err := ipmi.ParseFullSensorRecord(fanRecord(0x0021, 0x41, "FAN1"))
	require.NoError(t, err)

	assert.Equal(t, uint16(0x0021), rec.RecordID)
	assert.Equal(t, uint8(0x20), rec.OwnerID)
	assert.Equal(t, uint8(0x41), rec.SensorNumber)
	assert.Equal(t, uint8(ipmi.SensorTypeFan), rec.SensorType)
	assert.Equal(t, int16(70), rec.M)
	assert.Equal(t, "FAN1", rec.Name)
}

func TestParseRejectsShortAndNonFullRecords(t *testing.T) {
	_, err := ipmi.ParseFullSensorRecord([]byte{0x01, 0x00, 0x51})
	assert.True(t, errors.HasCode(err, ipmi.ErrInvalidRecord))

	_, err = ipmi.ParseFullSensorRecord(buildRecord(1, recordOpts{recordType: 0x02}))
	assert.True(t, errors.HasCode(err, ipmi.ErrNotFullSensorRecord))

	_, err = ipmi.ParseFullSensorRecord(fanRecord(1, 1, "FAN1")[:30])
	assert.True(t, errors.HasCode(err, ipmi.ErrInvalidRecord))
}

func TestConvert(t *testing.T) {
	tests := []struct {
		name string
		opts recordOpts
		raw  byte
		want float64
	}{
		{"linear fan", recordOpts{m: 70}, 100, 7000},
		{"negative result exponent", recordOpts{m: 2, exps: 0xf0}, 50, 10},
		{"offset with exponent", recordOpts{m: 1, b: 5, exps: 0x01}, 10, 60},
		{"negative M", recordOpts{m: 0x3ff}, 10, -10},
		{"twos complement", recordOpts{m: 1, format: 2}, 0xf6, -10},
		{"ones complement", recordOpts{m: 1, format: 1}, 0xf5, -10},
		{"square", recordOpts{m: 3, linear: 8}, 4, 144},
		{"sqrt", recordOpts{m: 1, linear: 10}, 81, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := ipmi.ParseFullSensorRecord(buildRecord(1, tt.opts))
			require.NoError(t, err)

			got, err := rec.Convert(tt.raw)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestConvertRejectsNonAnalogAndOEMLinearization(t *testing.T) {
	rec, err := ipmi.ParseFullSensorRecord(buildRecord(1, recordOpts{m: 1, format: 3}))
	require.NoError(t, err)
	_, err = rec.Convert(1)
	assert.True(t, errors.HasCode(err, ipmi.ErrNoAnalogReading))

	rec, err = ipmi.ParseFullSensorRecord(buildRecord(1, recordOpts{m: 1, linear: 0x70}))
	require.NoError(t, err)
	_, err = rec.Convert(1)
	assert.True(t, errors.HasCode(err, ipmi.ErrInvalidRecord))
}

// fakeStore is an in-memory SDRStore.
type fakeStore struct {
	stamp    sdrcache.Stamp
	filled   bool
	records  map[uint16]sdrcache.Record
	replaced int
}

func (s *fakeStore) Stamp(context.Context) (sdrcache.Stamp, bool, error) {
	return s.stamp, s.filled, nil
}

func (s *fakeStore) Lookup(_ context.Context, id uint16) (sdrcache.Record, bool, error) {
	rec, ok := s.records[id]
	return rec, ok, nil
}

func (s *fakeStore) Replace(_ context.Context, stamp sdrcache.Stamp, records []sdrcache.Record) error {
	s.stamp = stamp
	s.filled = true
	s.replaced++
	s.records = make(map[uint16]sdrcache.Record, len(records))
	for _, rec := range records {
		s.records[rec.ID] = rec
	}

	return nil
}

// bmc emulates the storage and sensor commands of a BMC.
type bmc struct {
	records      [][]byte
	lastAddition uint32
	readings     map[byte][2]byte
	maxChunk     int
}

func (b *bmc) handle(req ipmi.Request) []byte {
	ok := []byte{req.Command, 0x00}

	switch {
	case req.NetFn == ipmi.NetFnStorage && req.Command == 0x20:
		info := make([]byte, 14)
		info[0] = 0x51
		binary.LittleEndian.PutUint16(info[1:], uint16(len(b.records)))
		binary.LittleEndian.PutUint32(info[5:], b.lastAddition)
		return append(ok, info...)
	case req.NetFn == ipmi.NetFnStorage && req.Command == 0x22:
		return append(ok, 0x34, 0x12)
	case req.NetFn == ipmi.NetFnStorage && req.Command == 0x23:
		if binary.LittleEndian.Uint16(req.Data[0:2]) != 0x1234 {
			return []byte{req.Command, 0xc5}
		}
		id := binary.LittleEndian.Uint16(req.Data[2:4])
		offset, count := int(req.Data[4]), int(req.Data[5])
		if count > b.maxChunk {
			b.maxChunk = count
		}
		idx := int(id)
		if idx >= len(b.records) {
			return []byte{req.Command, 0xcb}
		}
		next := uint16(idx + 1)
		if idx == len(b.records)-1 {
			next = 0xffff
		}
		resp := binary.LittleEndian.AppendUint16(ok, next)
		return append(resp, b.records[idx][offset:offset+count]...)
	case req.NetFn == ipmi.NetFnSensorEvent && req.Command == 0x2d:
		r := b.readings[req.Data[0]]
		return append(ok, r[0], r[1], 0x00)
	}

	return []byte{req.Command, 0xc1}
}

func newBMC() *bmc {
	return &bmc{
		records: [][]byte{
			fanRecord(0, 0x41, "FAN1"),
			buildRecord(1, recordOpts{sensorType: 0x01, sensorNum: 0x01, m: 1, name: "CPU Temp"}),
			fanRecord(2, 0x42, "FANA"),
			buildRecord(3, recordOpts{recordType: 0x12, name: "BMC"}),
		},
		lastAddition: 100,
		readings: map[byte][2]byte{
			0x41: {100, 0xc0},
			0x42: {0, 0xe0},
		},
	}
}

func countCommand(reqs []ipmi.Request, cmd byte) int {
	n := 0
	for _, r := range reqs {
		if r.Command == cmd {
			n++
		}
	}
	return n
}

func TestReadRepositoryChunksRecords(t *testing.T) {
	b := newBMC()
	client := ipmi.NewClient(&fakeTransport{handler: b.handle})

	records, err := client.ReadRepository(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 4)
	for i, rec := range records {
		assert.Equal(t, uint16(i), rec.ID)
		assert.Equal(t, b.records[i], rec.Data)
	}
	assert.Equal(t, uint8(0x12), records[3].Type)
	assert.LessOrEqual(t, b.maxChunk, 16)
}

func TestInitFanSensorsBuildsAndReusesCache(t *testing.T) {
	ctx := context.Background()
	b := newBMC()
	tr := &fakeTransport{handler: b.handle}
	client := ipmi.NewClient(tr)
	store := &fakeStore{}
	fans := []ipmi.FanSpec{{Name: "FAN1", RecordID: 0}, {Name: "FANA", RecordID: 2}}

	sensors, err := client.InitFanSensors(ctx, store, fans)
	require.NoError(t, err)
	require.Len(t, sensors, 2)
	assert.Equal(t, "FANA", sensors[1].Name)
	assert.Equal(t, uint8(0x42), sensors[1].Record.SensorNumber)
	assert.Equal(t, 1, store.replaced)

	tr.requests = nil
	_, err = client.InitFanSensors(ctx, store, fans)
	require.NoError(t, err)
	assert.Equal(t, 1, store.replaced)
	assert.Zero(t, countCommand(tr.requests, 0x23))

	b.lastAddition = 200
	_, err = client.InitFanSensors(ctx, store, fans)
	require.NoError(t, err)
	assert.Equal(t, 2, store.replaced)
}

func TestInitFanSensorsRejectsBadRecords(t *testing.T) {
	tests := []struct {
		name string
		id   uint16
		code errors.ErrorCode
	}{
		{"not a fan", 1, ipmi.ErrNotFanSensor},
		{"not a full record", 3, ipmi.ErrNotFullSensorRecord},
		{"missing", 9, ipmi.ErrRecordNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := ipmi.NewClient(&fakeTransport{handler: newBMC().handle})

			_, err := client.InitFanSensors(context.Background(), &fakeStore{},
				[]ipmi.FanSpec{{Name: "FAN", RecordID: tt.id}})
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tt.code), "expected %s in %v", tt.code, err)
		})
	}
}

func TestReadFanRPM(t *testing.T) {
	ctx := context.Background()
	client := ipmi.NewClient(&fakeTransport{handler: newBMC().handle})

	sensors, err := client.InitFanSensors(ctx, &fakeStore{}, []ipmi.FanSpec{
		{Name: "FAN1", RecordID: 0},
		{Name: "FANA", RecordID: 2},
	})
	require.NoError(t, err)

	rpm, err := client.ReadFanRPM(ctx, sensors[0])
	require.NoError(t, err)
	assert.Equal(t, uint(7000), rpm)

	_, err = client.ReadFanRPM(ctx, sensors[1])
	assert.True(t, errors.HasCode(err, ipmi.ErrReadingUnavailable))
}

func TestReadFanRPMRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name string
		opts recordOpts
		raw  byte
	}{
		{
			name: "negative",
			opts: recordOpts{m: 1, format: 2},
			raw:  0xf6,
		},
		{
			name: "above uint32",
			opts: recordOpts{m: 500, exps: 0x70},
			raw:  0xff,
		},
		{
			name: "infinite",
			opts: recordOpts{m: 0, linear: uint8(ipmi.LinearizationInverse)},
			raw:  0x10,
		},
		{
			name: "not a number",
			opts: recordOpts{m: 1, format: 2, linear: uint8(ipmi.LinearizationLn)},
			raw:  0xf6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.sensorType = ipmi.SensorTypeFan
			tt.opts.sensorNum = 0x50
			rec, err := ipmi.ParseFullSensorRecord(buildRecord(5, tt.opts))
			require.NoError(t, err)

			client := ipmi.NewClient(&fakeTransport{handler: respond(0x2d, 0x00, tt.raw, 0xc0)})
			_, err = client.ReadFanRPM(context.Background(), &ipmi.FanSensor{Name: "FAN5", RecordID: 5, Record: rec})
			assert.True(t, errors.HasCode(err, ipmi.ErrReadingOutOfRange), "got %v", err)
		})
	}
}
