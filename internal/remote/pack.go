package remote

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

// Layer sizing targets. Small size-class groups are combined; large
// ones split across layers at the soft maximum.
const (
	LayerMinSize = 2 * 1024 * 1024
	LayerSoftMax = 10 * 1024 * 1024

	keyFieldLen = 26 // textual node key length
)

// GroupBySizeClass buckets objects by the leading character of their
// key. The leading byte of a node key is its size-class tag, so this
// clusters objects of similar size into the same layers.
func GroupBySizeClass(objects map[string][]byte) map[string]map[string][]byte {
	result := make(map[string]map[string][]byte)
	for key, data := range objects {
		group := "0"
		if len(key) > 0 {
			group = key[:1]
		}
		if result[group] == nil {
			result[group] = make(map[string][]byte)
		}
		result[group][key] = data
	}
	return result
}

// BuildLayerPlan packs size-class groups into layers, combining small
// groups and respecting the soft maximum.
func BuildLayerPlan(groupSizes map[string]int64) [][]string {
	groups := make([]string, 0, len(groupSizes))
	for g := range groupSizes {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	var layers [][]string
	var current []string
	var size int64

	for _, group := range groups {
		groupSize := groupSizes[group]

		if len(current) == 0 {
			current = append(current, group)
			size = groupSize
			continue
		}

		newSize := size + groupSize
		switch {
		case newSize <= LayerSoftMax:
			current = append(current, group)
			size = newSize
		case size < LayerMinSize && newSize <= 2*LayerSoftMax:
			current = append(current, group)
			size = newSize
		default:
			layers = append(layers, current)
			current = []string{group}
			size = groupSize
		}
	}

	if len(current) > 0 {
		layers = append(layers, current)
	}
	return layers
}

// PackLayer packs objects into binary form: [key 26B][length 8B][data]
// repeated, sorted by key for determinism.
func PackLayer(objects map[string][]byte) []byte {
	keys := make([]string, 0, len(objects))
	for k := range objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	lenBuf := make([]byte, 8)
	for _, key := range keys {
		data := objects[key]
		buf.WriteString(key)
		binary.BigEndian.PutUint64(lenBuf, uint64(len(data)))
		buf.Write(lenBuf)
		buf.Write(data)
	}
	return buf.Bytes()
}

// UnpackLayer reverses PackLayer.
func UnpackLayer(data []byte) (map[string][]byte, error) {
	result := make(map[string][]byte)
	buf := bytes.NewReader(data)
	keyBuf := make([]byte, keyFieldLen)

	for buf.Len() > 0 {
		if _, err := buf.Read(keyBuf); err != nil {
			return nil, fmt.Errorf("read key: %w", err)
		}

		var length uint64
		if err := binary.Read(buf, binary.BigEndian, &length); err != nil {
			return nil, fmt.Errorf("read length: %w", err)
		}
		if uint64(buf.Len()) < length {
			return nil, fmt.Errorf("object truncated: want %d bytes, have %d", length, buf.Len())
		}

		objectData := make([]byte, length)
		if _, err := buf.Read(objectData); err != nil {
			return nil, fmt.Errorf("read data: %w", err)
		}

		result[string(keyBuf)] = objectData
	}
	return result, nil
}

// GroupSizes sums object sizes per group.
func GroupSizes(byGroup map[string]map[string][]byte) map[string]int64 {
	result := make(map[string]int64, len(byGroup))
	for group, objects := range byGroup {
		var total int64
		for _, data := range objects {
			total += int64(len(data))
		}
		result[group] = total
	}
	return result
}

// CollectGroupObjects flattens the named groups back into one map.
func CollectGroupObjects(groups []string, byGroup map[string]map[string][]byte) map[string][]byte {
	result := make(map[string][]byte)
	for _, group := range groups {
		for key, data := range byGroup[group] {
			result[key] = data
		}
	}
	return result
}
