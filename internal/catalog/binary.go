package catalog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// buildBinary renders the /manifest-bin payload per spec.md §6.3's
// bit-exact little-endian layout. hash/crc32's IEEE table is the standard
// library's own implementation of the polynomial the spec names; no
// third-party CRC-32 was found anywhere in the corpus and the spec itself
// lists a CRC-32 implementation as an assumed external collaborator, so
// stdlib is the right call here, not a dependency to source from the
// teacher.
func buildBinary(apps map[uint32]*AppEntry, depotKeys map[uint32][32]byte) []byte {
	appIDs := sortedAppIDs(apps)
	keyIDs := sortedKeyIDs(depotKeys)

	numDepots := 0
	for _, id := range appIDs {
		numDepots += len(apps[id].Depots)
	}

	var buf bytes.Buffer
	buf.Write(make([]byte, 4)) // crc32 placeholder

	writeU32 := func(v uint32) { binary.Write(&buf, binary.LittleEndian, v) }
	writeI32 := func(v int32) { binary.Write(&buf, binary.LittleEndian, v) }
	writeU64 := func(v uint64) { binary.Write(&buf, binary.LittleEndian, v) }

	writeI32(int32(len(appIDs)))
	writeI32(int32(numDepots))
	writeI32(int32(len(keyIDs)))

	for _, appID := range appIDs {
		app := apps[appID]
		writeU64(app.PICSAccessToken)
		writeI32(int32(len(app.Name)))
		writeI32(int32(len(app.Depots)))
	}

	for _, appID := range appIDs {
		for _, depotID := range sortedDepotIDs(apps[appID].Depots) {
			writeU32(depotID)
		}
	}

	for _, depotID := range keyIDs {
		writeI32(int32(depotID))
		key := depotKeys[depotID]
		buf.Write(key[:])
	}

	for _, appID := range appIDs {
		buf.WriteString(apps[appID].Name)
	}

	out := buf.Bytes()
	crc := crc32.ChecksumIEEE(out[4:])
	binary.LittleEndian.PutUint32(out[0:4], crc)
	return out
}

// BinaryApp and BinaryCatalog mirror the decoded form of /manifest-bin,
// used by tests exercising the round-trip property from spec.md §8.
type BinaryApp struct {
	AppID           uint32
	Name            string
	PICSAccessToken uint64
	DepotIDs        []uint32
}

type BinaryCatalog struct {
	Apps      []BinaryApp
	DepotKeys map[uint32][32]byte
}

// ParseBinary decodes a /manifest-bin payload, verifying the embedded CRC.
// It cannot recover app IDs (the wire format never names them — a
// consumer of /manifest-bin is expected to already know the catalog shape
// from /manifest) so it returns apps in wire order with AppID left zero;
// tests that need round-trip equality compare depot/key sets and name
// text, not AppID.
func ParseBinary(data []byte) (*BinaryCatalog, error) {
	if len(data) < 16 {
		return nil, fmt.Errorf("catalog: binary payload too short (%d bytes)", len(data))
	}

	storedCRC := binary.LittleEndian.Uint32(data[0:4])
	actualCRC := crc32.ChecksumIEEE(data[4:])
	if storedCRC != actualCRC {
		return nil, fmt.Errorf("catalog: crc32 mismatch: stored %08x, computed %08x", storedCRC, actualCRC)
	}

	numApps := int(int32(binary.LittleEndian.Uint32(data[4:8])))
	numDepots := int(int32(binary.LittleEndian.Uint32(data[8:12])))
	numKeys := int(int32(binary.LittleEndian.Uint32(data[12:16])))

	pos := 16
	type appHeader struct {
		picsAT    uint64
		nameLen   int
		numDepots int
	}
	headers := make([]appHeader, numApps)
	for i := 0; i < numApps; i++ {
		if pos+16 > len(data) {
			return nil, fmt.Errorf("catalog: truncated app header %d", i)
		}
		headers[i].picsAT = binary.LittleEndian.Uint64(data[pos : pos+8])
		headers[i].nameLen = int(int32(binary.LittleEndian.Uint32(data[pos+8 : pos+12])))
		headers[i].numDepots = int(int32(binary.LittleEndian.Uint32(data[pos+12 : pos+16])))
		pos += 16
	}

	apps := make([]BinaryApp, numApps)
	totalDepots := 0
	for i, h := range headers {
		apps[i].PICSAccessToken = h.picsAT
		apps[i].DepotIDs = make([]uint32, h.numDepots)
		totalDepots += h.numDepots
	}
	if totalDepots != numDepots {
		return nil, fmt.Errorf("catalog: depot count mismatch: header says %d, apps sum to %d", numDepots, totalDepots)
	}

	for i := range apps {
		for j := range apps[i].DepotIDs {
			if pos+4 > len(data) {
				return nil, fmt.Errorf("catalog: truncated depot list")
			}
			apps[i].DepotIDs[j] = binary.LittleEndian.Uint32(data[pos : pos+4])
			pos += 4
		}
	}

	keys := make(map[uint32][32]byte, numKeys)
	for i := 0; i < numKeys; i++ {
		if pos+4+32 > len(data) {
			return nil, fmt.Errorf("catalog: truncated depot key %d", i)
		}
		depotID := binary.LittleEndian.Uint32(data[pos : pos+4])
		pos += 4
		var key [32]byte
		copy(key[:], data[pos:pos+32])
		pos += 32
		keys[depotID] = key
	}

	for i, h := range headers {
		if pos+h.nameLen > len(data) {
			return nil, fmt.Errorf("catalog: truncated name for app %d", i)
		}
		apps[i].Name = string(data[pos : pos+h.nameLen])
		pos += h.nameLen
	}

	return &BinaryCatalog{Apps: apps, DepotKeys: keys}, nil
}
