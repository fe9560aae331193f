package fetcher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingHTML = `<html><body>
<ul class="resource-list">
  <li><a href="https://dados.antt.gov.br/dataset/x/resource/1/download/horarios_01_2024.csv">Horários</a></li>
  <li><a href="/dataset/x/resource/2/download/linhas_secoes_01_2024.csv">Linhas</a></li>
  <li><a href="download/historico_linhas_secoes_2019.csv">Histórico</a></li>
  <li><a name="anchor-only">no href</a></li>
  <li><a href="">empty</a></li>
  <li><a href="  https://dados.antt.gov.br/dicionario.pdf ">PDF</a></li>
</ul>
</body></html>`

func TestExtractLinks(t *testing.T) {
	links, err := ExtractLinks(strings.NewReader(listingHTML), "https://dados.antt.gov.br/dataset/gerenciamento-de-autorizacoes")
	require.NoError(t, err)
	require.Len(t, links, 4)

	assert.Equal(t, "https://dados.antt.gov.br/dataset/x/resource/1/download/horarios_01_2024.csv", links[0].URL)
	assert.Equal(t, links[0].Href, links[0].URL)

	assert.Equal(t, "/dataset/x/resource/2/download/linhas_secoes_01_2024.csv", links[1].Href)
	assert.Equal(t, "https://dados.antt.gov.br/dataset/x/resource/2/download/linhas_secoes_01_2024.csv", links[1].URL)

	assert.Equal(t, "https://dados.antt.gov.br/dataset/download/historico_linhas_secoes_2019.csv", links[2].URL)
	assert.Equal(t, "https://dados.antt.gov.br/dicionario.pdf", links[3].Href)
}

func TestExtractLinks_NoAnchors(t *testing.T) {
	links, err := ExtractLinks(strings.NewReader("<p>nothing here</p>"), "https://example.com/")
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestExtractLinks_BadPageURL(t *testing.T) {
	_, err := ExtractLinks(strings.NewReader(listingHTML), "://bad")
	assert.Error(t, err)
}
