package vlc

import "encoding/xml"

// Status is the parsed form of VLC's status.xml response.
type Status struct {
	State      string  // "playing", "paused", "stopped"
	Time       int     // elapsed seconds of the current item
	Length     int     // total seconds of the current item (-1 if unknown)
	Random     bool    // shuffle mode
	Loop       bool    // repeat playlist
	Repeat     bool    // repeat current item
	Rate       float64 // playback rate
	APIVersion string
	Filename   string // current file name from status metadata, may be empty
}

// TimeLeft returns the seconds remaining in the current item, or -1 if the
// length is unknown.
func (s *Status) TimeLeft() int {
	if s.Length <= 0 {
		return -1
	}
	left := s.Length - s.Time
	if left < 0 {
		left = 0
	}
	return left
}

// PlaylistItem is one entry of VLC's playlist.xml response.
type PlaylistItem struct {
	ID       string
	Name     string
	URI      string
	Duration int
	Current  bool
}

// CurrentItem returns the currently playing item and its 1-based position
// within the playlist. ok is false if no item is marked current.
func CurrentItem(items []PlaylistItem) (item PlaylistItem, position int, ok bool) {
	for i, it := range items {
		if it.Current {
			return it, i + 1, true
		}
	}
	return PlaylistItem{}, 0, false
}

// FindByPosition returns the item at the given 1-based playlist position.
func FindByPosition(items []PlaylistItem, position int) (PlaylistItem, bool) {
	if position < 1 || position > len(items) {
		return PlaylistItem{}, false
	}
	return items[position-1], true
}

// FindByID returns the item with the given playlist id.
func FindByID(items []PlaylistItem, id string) (PlaylistItem, bool) {
	for _, it := range items {
		if it.ID == id {
			return it, true
		}
	}
	return PlaylistItem{}, false
}

// statusXML mirrors the subset of status.xml we care about.
type statusXML struct {
	XMLName    xml.Name `xml:"root"`
	State      string   `xml:"state"`
	Time       int      `xml:"time"`
	Length     int      `xml:"length"`
	Random     string   `xml:"random"`
	Loop       string   `xml:"loop"`
	Repeat     string   `xml:"repeat"`
	Rate       float64  `xml:"rate"`
	APIVersion string   `xml:"apiversion"`
	Info       struct {
		Categories []struct {
			Name  string `xml:"name,attr"`
			Infos []struct {
				Name  string `xml:"name,attr"`
				Value string `xml:",chardata"`
			} `xml:"info"`
		} `xml:"category"`
	} `xml:"information"`
}

func (x *statusXML) toStatus() *Status {
	st := &Status{
		State:      x.State,
		Time:       x.Time,
		Length:     x.Length,
		Random:     x.Random == "true",
		Loop:       x.Loop == "true",
		Repeat:     x.Repeat == "true",
		Rate:       x.Rate,
		APIVersion: x.APIVersion,
	}
	for _, cat := range x.Info.Categories {
		if cat.Name != "meta" {
			continue
		}
		for _, info := range cat.Infos {
			if info.Name == "filename" {
				st.Filename = info.Value
			}
		}
	}
	return st
}

// nodeXML mirrors playlist.xml. VLC nests leaf items under one or more
// playlist nodes, so leaves are collected recursively.
type nodeXML struct {
	XMLName xml.Name  `xml:"node"`
	Nodes   []nodeXML `xml:"node"`
	Leaves  []leafXML `xml:"leaf"`
}

type leafXML struct {
	ID       string `xml:"id,attr"`
	Name     string `xml:"name,attr"`
	URI      string `xml:"uri,attr"`
	Duration int    `xml:"duration,attr"`
	Current  string `xml:"current,attr"`
}

func (n *nodeXML) collect(items []PlaylistItem) []PlaylistItem {
	for _, leaf := range n.Leaves {
		items = append(items, PlaylistItem{
			ID:       leaf.ID,
			Name:     leaf.Name,
			URI:      leaf.URI,
			Duration: leaf.Duration,
			Current:  leaf.Current != "",
		})
	}
	for i := range n.Nodes {
		items = n.Nodes[i].collect(items)
	}
	return items
}
