package database

// GetStats returns row counts per entity for the status command.
func (db *DB) GetStats() (*Stats, error) {
	stats := &Stats{}
	counts := []struct {
		table string
		dst   *int
	}{
		{"websites", &stats.Websites},
		{"users", &stats.Users},
		{"stories", &stats.Stories},
		{"chapters", &stats.Chapters},
		{"chapter_contents", &stats.ChapterContents},
		{"comments", &stats.Comments},
		{"reviews", &stats.Reviews},
		{"rankings", &stats.Rankings},
		{"scores", &stats.Scores},
	}
	for _, c := range counts {
		if err := db.conn.QueryRow("SELECT COUNT(*) FROM " + c.table).Scan(c.dst); err != nil {
			return nil, err
		}
	}
	return stats, nil
}
