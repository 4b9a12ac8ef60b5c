package ipmi

import (
	"context"
	"encoding/binary"

	"codeberg.org/mutker/smfd/internal/errors"
	"codeberg.org/mutker/smfd/internal/logger"
	"codeberg.org/mutker/smfd/internal/sdrcache"
)

const (
	cmdGetSDRRepositoryInfo = 0x20
	cmdReserveSDRRepository = 0x22
	cmdGetSDR               = 0x23

	sdrRepositoryInfoLen = 14
	sdrChunkLen          = 16
	lastRecordID         = 0xffff
)

// RepositoryInfo is the subset of Get SDR Repository Info used to detect
// changes to the repository.
type RepositoryInfo struct {
	Version      uint8
	RecordCount  uint16
	LastAddition uint32
	LastErase    uint32
}

func (i RepositoryInfo) Stamp() sdrcache.Stamp {
	return sdrcache.Stamp{
		RecordCount:  i.RecordCount,
		LastAddition: i.LastAddition,
		LastErase:    i.LastErase,
	}
}

func storageRequest(cmd byte, data ...byte) Request {
	return Request{
		NetFn:   NetFnStorage,
		Command: cmd,
		Data:    data,
	}
}

func (c *Client) RepositoryInfo(ctx context.Context) (RepositoryInfo, error) {
	data, err := c.RawCommand(ctx, storageRequest(cmdGetSDRRepositoryInfo), sdrRepositoryInfoLen)
	if err != nil {
		return RepositoryInfo{}, errors.New().Wrap(ErrSDRRead, err)
	}

	return RepositoryInfo{
		Version:      data[0],
		RecordCount:  binary.LittleEndian.Uint16(data[1:3]),
		LastAddition: binary.LittleEndian.Uint32(data[5:9]),
		LastErase:    binary.LittleEndian.Uint32(data[9:13]),
	}, nil
}

func (c *Client) reserveRepository(ctx context.Context) (uint16, error) {
	data, err := c.RawCommand(ctx, storageRequest(cmdReserveSDRRepository), 2)
	if err != nil {
		return 0, errors.New().Wrap(ErrSDRRead, err)
	}

	return binary.LittleEndian.Uint16(data), nil
}

// getSDR reads count bytes of record id starting at offset and returns
// the next record ID along with the data.
func (c *Client) getSDR(ctx context.Context, reservation, id uint16, offset, count uint8) (uint16, []byte, error) {
	req := storageRequest(cmdGetSDR,
		byte(reservation), byte(reservation>>8),
		byte(id), byte(id>>8),
		offset, count,
	)
	data, err := c.RawCommand(ctx, req, 2+int(count))
	if err != nil {
		return 0, nil, errors.New().Wrap(ErrSDRRead, err)
	}

	return binary.LittleEndian.Uint16(data[:2]), data[2:], nil
}

// ReadRecord reads one complete record: the header first, then the body
// in chunks.
func (c *Client) ReadRecord(ctx context.Context, reservation, id uint16) (uint16, sdrcache.Record, error) {
	next, header, err := c.getSDR(ctx, reservation, id, 0, sdrHeaderLen)
	if err != nil {
		return 0, sdrcache.Record{}, err
	}

	bodyLen := int(header[4])
	data := make([]byte, 0, sdrHeaderLen+bodyLen)
	data = append(data, header...)

	for offset := sdrHeaderLen; offset < sdrHeaderLen+bodyLen; offset += sdrChunkLen {
		count := sdrHeaderLen + bodyLen - offset
		if count > sdrChunkLen {
			count = sdrChunkLen
		}
		_, chunk, err := c.getSDR(ctx, reservation, id, uint8(offset), uint8(count))
		if err != nil {
			return 0, sdrcache.Record{}, err
		}
		data = append(data, chunk...)
	}

	return next, sdrcache.Record{
		ID:   binary.LittleEndian.Uint16(header[:2]),
		Type: header[3],
		Data: data,
	}, nil
}

// ReadRepository walks the whole repository from the first record.
func (c *Client) ReadRepository(ctx context.Context) ([]sdrcache.Record, error) {
	reservation, err := c.reserveRepository(ctx)
	if err != nil {
		return nil, err
	}

	var records []sdrcache.Record
	seen := make(map[uint16]bool)

	for id := uint16(0); id != lastRecordID; {
		if seen[id] {
			return nil, errors.New().WithData(ErrInvalidRecord, struct {
				Phase    string
				RecordID uint16
			}{
				Phase:    "walk_repository",
				RecordID: id,
			})
		}
		seen[id] = true

		next, rec, err := c.ReadRecord(ctx, reservation, id)
		if err != nil {
			return nil, err
		}
		logger.Debug().
			Uint16("record_id", rec.ID).
			Uint8("record_type", rec.Type).
			Int("bytes", len(rec.Data)).
			Msg("Read SDR record")

		records = append(records, rec)
		id = next
	}

	return records, nil
}
