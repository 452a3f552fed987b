package strata

import "fmt"

// KeyBuilderSet holds the ordered extractor chains that turn one joined
// row into a storage key and value for a target table. Edge tables also
// carry the inverse-key chain: the forward key is
//
//	[src-tid][src key cols][true][dst key cols][edge key cols]
//
// and the inverse key swaps source and destination
//
//	[dst-tid][dst key cols][true][src key cols][edge key cols]
//
// so both "outgoing edges from X" and "incoming edges to X" are answered
// by a forward prefix scan, without a secondary index.
type KeyBuilderSet struct {
	Key []Extractor
	Val []Extractor
	Inv []Extractor // nil for node tables
}

// columnExtractors selects the resolved extractor for each declared
// column, in declared order. A column missing from the extraction dict is
// a build-time error.
func columnExtractors(cols []ColumnSpec, extract map[string]Extractor, table string) ([]Extractor, error) {
	out := make([]Extractor, len(cols))
	for i, col := range cols {
		ex, ok := extract[col.Name]
		if !ok {
			return nil, fmt.Errorf("%w: table %q requires column %q, missing from extraction dict",
				ErrParse, table, col.Name)
		}
		out[i] = ex
	}
	return out, nil
}

// makeKeyBuilderSet compiles the key, value and (for edges) inverse-key
// extractor chains for a target table from a resolved extraction dict.
func makeKeyBuilderSet(c *Catalog, target TableInfo, extract map[string]Extractor) (*KeyBuilderSet, error) {
	switch info := target.(type) {
	case *NodeInfo:
		key, err := columnExtractors(info.Keys, extract, info.Name)
		if err != nil {
			return nil, err
		}
		val, err := columnExtractors(info.Vals, extract, info.Name)
		if err != nil {
			return nil, err
		}
		return &KeyBuilderSet{Key: key, Val: val}, nil

	case *EdgeInfo:
		src, err := c.NodeByID(info.SrcID)
		if err != nil {
			return nil, err
		}
		dst, err := c.NodeByID(info.DstID)
		if err != nil {
			return nil, err
		}
		srcKeys, err := columnExtractors(src.Keys, extract, info.Name)
		if err != nil {
			return nil, err
		}
		dstKeys, err := columnExtractors(dst.Keys, extract, info.Name)
		if err != nil {
			return nil, err
		}
		edgeKeys, err := columnExtractors(info.Keys, extract, info.Name)
		if err != nil {
			return nil, err
		}
		val, err := columnExtractors(info.Vals, extract, info.Name)
		if err != nil {
			return nil, err
		}

		srcTid := constExtractor{v: Int(int64(info.SrcID.ID))}
		dstTid := constExtractor{v: Int(int64(info.DstID.ID))}
		marker := constExtractor{v: Bool(true)}

		key := make([]Extractor, 0, 2+len(srcKeys)+len(dstKeys)+len(edgeKeys))
		key = append(key, srcTid)
		key = append(key, srcKeys...)
		key = append(key, marker)
		key = append(key, dstKeys...)
		key = append(key, edgeKeys...)

		inv := make([]Extractor, 0, cap(key))
		inv = append(inv, dstTid)
		inv = append(inv, dstKeys...)
		inv = append(inv, marker)
		inv = append(inv, srcKeys...)
		inv = append(inv, edgeKeys...)

		return &KeyBuilderSet{Key: key, Val: val, Inv: inv}, nil

	default:
		return nil, fmt.Errorf("strata: cannot build keys for table %q (unsupported schema kind)",
			target.TableName())
	}
}
