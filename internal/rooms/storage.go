package rooms

// StorageNode is one node of the store's structured document tree, in the
// wire shape its initialize-storage endpoint expects: a type tag plus the
// node's data, which is a map for objects and a slice for lists.
type StorageNode struct {
	LiveblocksType string `json:"liveblocksType"`
	Data           any    `json:"data"`
}

// LiveObject builds an object node. Map values may be plain JSON scalars or
// nested StorageNodes.
func LiveObject(data map[string]any) StorageNode {
	return StorageNode{LiveblocksType: "LiveObject", Data: data}
}

// LiveList builds a list node.
func LiveList(items ...StorageNode) StorageNode {
	if items == nil {
		items = []StorageNode{}
	}
	return StorageNode{LiveblocksType: "LiveList", Data: items}
}
