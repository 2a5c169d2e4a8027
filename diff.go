package pullsync

// Diff returns the records of server whose digests appear nowhere in client,
// in server order.
// Names play no part in the comparison.
//
// Files present in client but absent from server are not reported.
func Diff(server, client Inventory) Inventory {
	have := client.Digests()

	var out Inventory
	for _, rec := range server {
		if _, ok := have[rec.Digest]; !ok {
			out = append(out, rec)
		}
	}
	return out
}
