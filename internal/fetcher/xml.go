package fetcher

// The update XML has been observed with both lower- and upper-case
// element names and with the hash attribute spelled either "digest" or
// "sha1", so every variant gets its own field. The root element name is
// not matched so that case variants of <titlepatch> decode too.
//
//	<titlepatch titleid="BLES00799">
//	  <tag name="BLES00799_T8">
//	    <package version="1.10" size="123456789" sha1="..."
//	             url="http://.../BLES00799-ver.1.10.pkg" ps3_system_ver="3.60">
//	      <paramsfo><TITLE>Demon's Souls</TITLE></paramsfo>
//	    </package>
//	  </tag>
//	</titlepatch>
type titlePatch struct {
	TitleID    string        `xml:"titleid,attr"`
	Tags       []tagNode     `xml:"tag"`
	TagsUpper  []tagNode     `xml:"TAG"`
	Packages   []packageNode `xml:"package"`
	PackagesUC []packageNode `xml:"PACKAGE"`
}

type tagNode struct {
	Name       string        `xml:"name,attr"`
	Packages   []packageNode `xml:"package"`
	PackagesUC []packageNode `xml:"PACKAGE"`
}

type packageNode struct {
	Version    string    `xml:"version,attr"`
	Size       string    `xml:"size,attr"`
	URL        string    `xml:"url,attr"`
	Digest     string    `xml:"digest,attr"`
	SHA1       string    `xml:"sha1,attr"`
	SystemVer  string    `xml:"ps3_system_ver,attr"`
	ParamSFO   *paramSFO `xml:"paramsfo"`
	ParamSFOUC *paramSFO `xml:"PARAMSFO"`
}

type paramSFO struct {
	Title string `xml:"TITLE"`
}

// packages flattens every element-name variant into one list, preferring
// entries nested under <tag> as the server emits them.
func (tp *titlePatch) packages() []packageNode {
	var pkgs []packageNode

	for _, tag := range append(tp.Tags, tp.TagsUpper...) {
		pkgs = append(pkgs, tag.Packages...)
		pkgs = append(pkgs, tag.PackagesUC...)
	}

	if len(pkgs) == 0 {
		pkgs = append(pkgs, tp.Packages...)
		pkgs = append(pkgs, tp.PackagesUC...)
	}

	return pkgs
}

func (p *packageNode) hash() string {
	if p.Digest != "" {
		return p.Digest
	}
	return p.SHA1
}

func (p *packageNode) title() string {
	if p.ParamSFO != nil && p.ParamSFO.Title != "" {
		return p.ParamSFO.Title
	}
	if p.ParamSFOUC != nil && p.ParamSFOUC.Title != "" {
		return p.ParamSFOUC.Title
	}
	return ""
}
